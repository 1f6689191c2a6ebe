package corpus

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/kiranshivaraju/testscout/pkg/models"
)

// Header is the column layout written by WriteCSV.
var Header = []string{"ID", "Title", "State", "Area", "Created Date", "Description", "Steps"}

// WriteCSV writes records in corpus format. Steps are written verbatim.
func WriteCSV(w io.Writer, records []*models.TestCase) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write([]string{r.ID, r.Title, r.State, r.Area, r.CreatedDate, r.Description, r.Steps}); err != nil {
			return fmt.Errorf("write record %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
