package tfs

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kiranshivaraju/testscout/internal/textproc"
	"github.com/kiranshivaraju/testscout/pkg/models"
)

type xmlStep struct {
	Strings []string `xml:"parameterizedString"`
}

// ParseSteps converts the steps XML of a test case into the corpus format:
// "Step N: action | Expected: result" joined by models.StepDelimiter.
// Steps are numbered in document order, including those nested in shared
// step references; a step without an action is skipped but keeps its number.
func ParseSteps(stepsXML string) (string, error) {
	if strings.TrimSpace(stepsXML) == "" {
		return "", nil
	}

	dec := xml.NewDecoder(strings.NewReader(stepsXML))
	var out []string
	n := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return strings.Join(out, models.StepDelimiter), fmt.Errorf("parse steps: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "step" {
			continue
		}

		var s xmlStep
		if err := dec.DecodeElement(&s, &start); err != nil {
			return strings.Join(out, models.StepDelimiter), fmt.Errorf("parse step: %w", err)
		}
		n++

		var action, expected string
		if len(s.Strings) > 0 {
			action = textproc.StripHTML(s.Strings[0])
		}
		if len(s.Strings) > 1 {
			expected = textproc.StripHTML(s.Strings[1])
		}
		if action == "" {
			continue
		}
		line := fmt.Sprintf("Step %d: %s", n, action)
		if expected != "" {
			line += " | Expected: " + expected
		}
		out = append(out, line)
	}
	return strings.Join(out, models.StepDelimiter), nil
}
