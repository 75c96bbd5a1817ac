package query

import (
	"strconv"
	"strings"

	"audittrail/pkg/platform/audit"
)

// csvHeader is written unquoted; data cells are always quoted.
var csvHeader = []string{
	"ID", "Timestamp", "Actor Type", "Actor ID", "Action",
	"Result", "Reason", "Target Type", "Target ID", "Request ID",
}

// EncodeCSV renders records as a header line followed by one fully quoted line per
// record, joined by "\n" with no trailing newline.
func EncodeCSV(recs []audit.Record) string {
	var b strings.Builder
	b.WriteString(strings.Join(csvHeader, ","))
	for i := range recs {
		b.WriteByte('\n')
		writeRow(&b, csvRow(&recs[i]))
	}
	return b.String()
}

func csvRow(r *audit.Record) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		audit.FormatTimestamp(r.Timestamp),
		string(r.ActorType),
		idString(r.ActorID),
		string(r.Action),
		string(r.Result),
		r.ReasonCode,
		r.TargetType,
		idString(r.TargetID),
		r.RequestID,
	}
}

func writeRow(b *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
}

func idString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
