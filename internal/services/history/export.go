package history

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{
	"tracking_number", "status", "weight", "dimensions", "service_type",
	"sender", "recipient", "note", "pinned", "created_at",
}

type ExportFilter struct {
	Status          string
	TrackingNumbers []string
}

// Export is a rendered history file.
type Export struct {
	Data        []byte
	ContentType string
	Filename    string
}

func (s *Service) Export(ctx context.Context, userID int64, format string, f ExportFilter) (*Export, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "excel" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "xml" {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", format)
	}

	entries, err := s.repo.ListAllHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows := exportRows(filterEntries(entries, f))

	switch format {
	case "xlsx":
		b, err := renderXLSX(rows)
		if err != nil {
			return nil, err
		}
		return &Export{
			Data:        b,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Filename:    "history.xlsx",
		}, nil
	default:
		b, err := renderXML(rows)
		if err != nil {
			return nil, err
		}
		return &Export{Data: b, ContentType: "application/xml", Filename: "history.xml"}, nil
	}
}

func filterEntries(in []*models.HistoryEntry, f ExportFilter) []*models.HistoryEntry {
	want := map[string]bool{}
	for _, n := range f.TrackingNumbers {
		want[n] = true
	}
	out := make([]*models.HistoryEntry, 0, len(in))
	for _, h := range in {
		if len(want) > 0 && !want[h.TrackingNumber] {
			continue
		}
		if f.Status != "" && (h.Status == nil || *h.Status != f.Status) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func exportRows(entries []*models.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, h := range entries {
		status := ""
		if h.Status != nil {
			status = *h.Status
		}
		note := ""
		if h.Note != nil {
			note = *h.Note
		}
		rows = append(rows, []string{
			h.TrackingNumber,
			status,
			metaString(h.Meta["weight"]),
			metaString(h.Meta["dimensions"]),
			metaString(h.Meta["service_type"]),
			metaString(h.Meta["sender"]),
			metaString(h.Meta["recipient"]),
			note,
			fmt.Sprintf("%t", h.Pinned),
			h.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func metaString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func renderXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "History"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, errors.Wrap(err, "rename sheet")
	}

	all := append([][]string{exportColumns}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, errors.Wrap(err, "cell name")
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, errors.Wrap(err, "write row")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "write xlsx")
	}
	return buf.Bytes(), nil
}

type xmlRecords struct {
	XMLName xml.Name    `xml:"records"`
	Records []xmlRecord `xml:"record"`
}

type xmlRecord struct {
	TrackingNumber string `xml:"tracking_number"`
	Status         string `xml:"status"`
	Weight         string `xml:"weight"`
	Dimensions     string `xml:"dimensions"`
	ServiceType    string `xml:"service_type"`
	Sender         string `xml:"sender"`
	Recipient      string `xml:"recipient"`
	Note           string `xml:"note"`
	Pinned         string `xml:"pinned"`
	CreatedAt      string `xml:"created_at"`
}

func renderXML(rows [][]string) ([]byte, error) {
	doc := xmlRecords{Records: make([]xmlRecord, 0, len(rows))}
	for _, r := range rows {
		doc.Records = append(doc.Records, xmlRecord{
			TrackingNumber: r[0], Status: r[1], Weight: r[2], Dimensions: r[3], ServiceType: r[4],
			Sender: r[5], Recipient: r[6], Note: r[7], Pinned: r[8], CreatedAt: r[9],
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "encode xml")
	}
	return buf.Bytes(), nil
}
