package cmdutil

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/papercomputeco/tracks/pkg/cliui"
	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/tags"
	"github.com/papercomputeco/tracks/pkg/utils"
)

// maxValueLen truncates long tag values such as URLs in terminal output.
const maxValueLen = 96

// PrintTags writes one "tag = value" line per value. When reasons is non-nil
// each line is followed by its provenance.
func PrintTags(w io.Writer, indent string, t *tags.Tags, reasons engine.Reasons) {
	for _, tv := range t.TagValues() {
		fmt.Fprintf(w, "%s%s = %s\n", indent,
			cliui.KeyStyle.Render(tv.Tag),
			cliui.ValueStyle.Render(utils.Truncate(tv.Value, maxValueLen)),
		)
		if reasons == nil {
			continue
		}
		if r, ok := reasons[tv.Key()]; ok {
			fmt.Fprintf(w, "%s  %s\n", indent, cliui.DimStyle.Render(DescribeReason(r)))
		}
	}
}

// DescribeReason renders a provenance record on one line.
func DescribeReason(r engine.Reason) string {
	if r.Kind == engine.ReasonIntrinsic {
		return "intrinsic"
	}
	s := fmt.Sprintf("rule %s in %s", r.Rule, r.Group)
	if len(r.Matched) > 0 {
		s += fmt.Sprintf(" (matched %v)", r.Matched)
	}
	return s
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
