package record

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"
)

var exportHeader = []string{
	"id", "billNo", "kind", "ptName", "phoneNo", "email", "age", "gender",
	"preferredDate", "preferredTime", "service", "status", "deliveryStatus",
	"visitPrice", "framePrice", "lensePrice", "medicinePrice",
	"medicineAdvance", "opticalAdvance", "medicineDue",
	"totalAmount", "totalAdvance", "totalDue", "repeated", "createdAt",
}

// ExportRecords writes the records matching q as CSV to w, in the same
// order ListRecords returns them.
func (s *Service) ExportRecords(ctx context.Context, q Query, w io.Writer) (int, error) {
	recs, err := s.ListRecords(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(recs), WriteCSV(w, recs)
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, recs []*Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			cell(r.ID), cell(r.BillNo), string(r.Kind), cell(r.PtName), cell(r.PhoneNo),
			cell(r.Email), cell(r.Age), cell(r.Gender),
			cell(r.PreferredDate), cell(r.PreferredTime), cell(r.Service), r.Status, r.DeliveryStatus,
			r.VisitPrice.Fixed(), r.FramePrice.Fixed(), r.LensePrice.Fixed(), r.MedicinePrice.Fixed(),
			r.MedicineAdvance.Fixed(), r.OpticalAdvance.Fixed(), r.MedicineDue.Fixed(),
			r.TotalAmount.Fixed(), r.TotalAdvance.Fixed(), r.TotalDue.Fixed(),
			strconv.FormatBool(r.Repeated), r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cell neutralises values a spreadsheet would evaluate as a formula.
func cell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}
