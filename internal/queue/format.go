package queue

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"qms/ticketing/internal/models"
)

var numberPlaceholder = regexp.MustCompile(`\{numero(?::(\d+))?\}`)

// FormatCode renders the ticket's display code using the configured format.
func (e *Engine) FormatCode(ctx context.Context, t models.Ticket) (string, error) {
	cfg, err := e.catalog.Config(ctx)
	if err != nil {
		return "", err
	}
	return FormatCode(t, cfg), nil
}

func FormatCode(t models.Ticket, cfg models.QueueConfig) string {
	switch cfg.TicketFormat {
	case models.FormatCompact:
		return fmt.Sprintf("%s%d", initial(t), t.Sequence)
	case models.FormatLong:
		category := "Comum"
		if t.Priority {
			category = "Preferencial"
		}
		return fmt.Sprintf("%s-%04d", category, t.Sequence)
	case models.FormatCustom:
		return formatCustom(t, cfg.CustomFormat)
	default:
		return t.Code
	}
}

// formatCustom expands {categoria}, {numero}, {numero:N}, {servico} and
// {sigla}.
func formatCustom(t models.Ticket, template string) string {
	if template == "" {
		return t.Code
	}
	out := strings.ReplaceAll(template, "{categoria}", initial(t))
	out = numberPlaceholder.ReplaceAllStringFunc(out, func(match string) string {
		digits := 3
		if sub := numberPlaceholder.FindStringSubmatch(match); len(sub) > 1 && sub[1] != "" {
			if n, err := strconv.Atoi(sub[1]); err == nil {
				digits = n
			}
		}
		return fmt.Sprintf("%0*d", digits, t.Sequence)
	})
	name, code := "", ""
	if t.Service != nil {
		name, code = t.Service.Name, t.Service.Code
	}
	out = strings.ReplaceAll(out, "{servico}", name)
	return strings.ReplaceAll(out, "{sigla}", code)
}

func initial(t models.Ticket) string {
	if t.Service != nil && t.Service.Code != "" {
		return string([]rune(t.Service.Code)[:1])
	}
	if t.Priority {
		return "P"
	}
	return "C"
}
