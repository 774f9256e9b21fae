// Package notify sends appraisal result emails through Resend.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/resend/resend-go/v2"
	"github.com/rotisserie/eris"
)

// Notifier delivers appraisal results to a recipient.
type Notifier interface {
	SendResult(ctx context.Context, to string, result ResultEmail) error
}

// ResultEmail holds everything the result email renders.
type ResultEmail struct {
	Address    string
	FinalValue float64
	RangeLow   float64
	RangeHigh  float64
	Narrative  string
	Comps      []CompLine
}

// CompLine is one comparable row in the email table.
type CompLine struct {
	Address       string
	SaleDate      string
	AdjustedPrice float64
}

type resendNotifier struct {
	client *resend.Client
	from   string
}

// NewResend creates a Notifier backed by the Resend API.
func NewResend(apiKey, from string) Notifier {
	return &resendNotifier{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

func (n *resendNotifier) SendResult(ctx context.Context, to string, result ResultEmail) error {
	html, err := renderResultHTML(result)
	if err != nil {
		return err
	}

	_, err = n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: fmt.Sprintf("Appraisal complete: %s", result.Address),
		Html:    html,
	})
	return eris.Wrapf(err, "notify: send result for %s", result.Address)
}

var resultTemplate = template.Must(template.New("result").Parse(`
<h2>Appraisal Result</h2>
<p><strong>{{.Address}}</strong></p>
<p>Final value opinion: <strong>${{printf "%.0f" .FinalValue}}</strong></p>
<p>Indicated range: ${{printf "%.0f" .RangeLow}} &ndash; ${{printf "%.0f" .RangeHigh}}</p>
{{if .Comps}}
<table border="1" cellpadding="4" cellspacing="0">
	<tr><th>Comparable</th><th>Sale Date</th><th>Adjusted Price</th></tr>
	{{range .Comps}}
	<tr><td>{{.Address}}</td><td>{{.SaleDate}}</td><td>${{printf "%.0f" .AdjustedPrice}}</td></tr>
	{{end}}
</table>
{{end}}
{{if .Narrative}}<p>{{.Narrative}}</p>{{end}}
`))

func renderResultHTML(result ResultEmail) (string, error) {
	var buf bytes.Buffer
	if err := resultTemplate.Execute(&buf, result); err != nil {
		return "", eris.Wrap(err, "notify: render result email")
	}
	return buf.String(), nil
}
