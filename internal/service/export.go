package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
)

// ExportCSV writes the registrations of an event as CSV: id, submitted_at,
// one column per form field including the consent field, checked_in and
// check_in_time.
func (s *Registrations) ExportCSV(ctx context.Context, eventID string, w io.Writer) error {
	_, schema, err := s.FormFor(ctx, eventID)
	if err != nil {
		return err
	}
	regs, err := s.store.ListRegistrations(ctx, eventID)
	if err != nil {
		return storeErr(err)
	}

	fields := schema.Fields()
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(fields)+4)
	header = append(header, "id", "submitted_at")
	for _, f := range fields {
		header = append(header, f.Name)
	}
	header = append(header, "checked_in", "check_in_time")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range regs {
		row := make([]string, 0, len(header))
		row = append(row, r.ID, r.SubmittedAt.UTC().Format(time.RFC3339))
		for _, f := range fields {
			row = append(row, cell(r.FormData[f.Name]))
		}
		checkInTime := ""
		if r.CheckInTime != nil {
			checkInTime = r.CheckInTime.UTC().Format(time.RFC3339)
		}
		row = append(row, strconv.FormatBool(r.CheckedIn), checkInTime)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, "; ")
	}
	return ""
}
