package cmdutil_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/dotdir"
	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/tags"
)

var _ = Describe("LoadConfig", func() {
	It("layers flags over the config file", func() {
		dir := GinkgoT().TempDir()
		toml := "[storage]\ndriver = \"inmemory\"\n\n[api]\nlisten = \":1111\"\n"
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600)).To(Succeed())

		var loaded *config.Config
		var listen, sqlite string
		cmd := &cobra.Command{
			Use: "test",
			RunE: func(cmd *cobra.Command, _ []string) error {
				var err error
				loaded, err = cmdutil.LoadConfig(cmd, config.FlagAPIListen)
				return err
			},
		}
		cmd.Flags().String(cmdutil.FlagConfigDir, "", "")
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &listen)
		config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &sqlite)

		cmd.SetArgs([]string{"--config-dir", dir, "--listen", ":2222", "-s", "/tmp/db.sqlite"})
		Expect(cmd.Execute()).To(Succeed())

		Expect(loaded.Storage.Driver).To(Equal(config.DriverInMemory))
		Expect(loaded.API.Listen).To(Equal(":2222"))
		Expect(loaded.Storage.SQLitePath).To(Equal("/tmp/db.sqlite"))
	})
})

var _ = Describe("ServiceLogger", func() {
	var (
		cmd    *cobra.Command
		stderr bytes.Buffer
		dir    string
	)

	BeforeEach(func() {
		stderr.Reset()
		dir = GinkgoT().TempDir()
		cmd = &cobra.Command{Use: "serve"}
		cmd.Flags().Bool(cmdutil.FlagDebug, false, "")
		cmd.Flags().String(cmdutil.FlagConfigDir, "", "")
		Expect(cmd.Flags().Set(cmdutil.FlagConfigDir, dir)).To(Succeed())
		cmd.SetErr(&stderr)
	})

	It("writes JSON to the console and the service log file", func() {
		f, err := cmdutil.OpenLogFile(cmd, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Name()).To(Equal(filepath.Join(dir, dotdir.LogFile)))

		cmdutil.ServiceLogger(cmd, true, f).Info("listening", "addr", ":8090")
		Expect(f.Close()).To(Succeed())

		var console map[string]any
		Expect(json.Unmarshal(bytes.TrimSpace(stderr.Bytes()), &console)).To(Succeed())
		Expect(console["addr"]).To(Equal(":8090"))

		data, err := os.ReadFile(filepath.Join(dir, dotdir.LogFile))
		Expect(err).NotTo(HaveOccurred())
		var record map[string]any
		Expect(json.Unmarshal(bytes.TrimSpace(data), &record)).To(Succeed())
		Expect(record["msg"]).To(Equal("listening"))
	})

	It("appends to an existing log file", func() {
		path := filepath.Join(dir, "custom.log")
		Expect(os.WriteFile(path, []byte("earlier\n"), 0o600)).To(Succeed())

		f, err := cmdutil.OpenLogFile(cmd, path)
		Expect(err).NotTo(HaveOccurred())
		cmdutil.ServiceLogger(cmd, false, f).Info("started")
		Expect(f.Close()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(HavePrefix("earlier\n"))
		Expect(string(data)).To(ContainSubstring(`"msg":"started"`))
		Expect(stderr.String()).To(ContainSubstring("started"))
	})

	It("logs only to the console without a file", func() {
		cmdutil.ServiceLogger(cmd, false, nil).Info("console only")
		Expect(stderr.String()).To(ContainSubstring("console only"))
		_, err := os.Stat(filepath.Join(dir, dotdir.LogFile))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})

var _ = Describe("PrintTags", func() {
	It("prints values and their provenance", func() {
		t := tags.New()
		t.Add("software-window-title", "vim")
		t.Add("activity", "editing")
		reasons := engine.Reasons{
			"software-window-title:vim": {Kind: engine.ReasonIntrinsic},
			"activity:editing":          {Kind: engine.ReasonRule, Group: "my-editor", Rule: "HasTag(software-window-title)"},
		}

		var buf bytes.Buffer
		cmdutil.PrintTags(&buf, "", t, reasons)
		out := buf.String()
		Expect(out).To(ContainSubstring("vim"))
		Expect(out).To(ContainSubstring("intrinsic"))
		Expect(out).To(ContainSubstring("rule HasTag(software-window-title) in my-editor"))
	})
})
