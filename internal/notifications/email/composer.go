// Package email renders expiry alert emails and provides address helpers
// shared by the delivery pipeline. Templates are compiled into the binary;
// rendering happens client-side so every provider (managed or tenant relay)
// receives the same finished bodies.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	texttemplate "text/template"
	"time"

	"expirywatch/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// AlertItem is one expiring record as it appears in an email body.
type AlertItem struct {
	SubjectName    string
	ReferenceLabel string
	ExpiryDate     time.Time
	DaysRemaining  int
	Status         types.AlertStatus
}

// AlertEmail is the composer input: everything needed to render one message
// for one recipient.
type AlertEmail struct {
	Type       types.NotificationType
	TenantName string
	TenantSlug string
	Recipient  types.Recipient
	Items      []AlertItem
}

// Composer renders an AlertEmail into transmission-ready content.
type Composer interface {
	Render(ctx context.Context, alert AlertEmail) (*types.RenderedEmail, error)
}

// templateData is the struct passed into Go templates for rendering.
type templateData struct {
	Subject       string
	TenantName    string
	RecipientName string
	Items         []itemView
	PortalURL     string
	GeneratedAt   string
}

// itemView is a display-ready row for one expiring record.
type itemView struct {
	SubjectName    string
	ReferenceLabel string
	ExpiresOn      string
	StatusLine     string
	Expired        bool
}

// subjectPrefixes maps notification types to their email subject line prefix.
var subjectPrefixes = map[types.NotificationType]string{
	types.NotifDocumentExpiryWarning: "Document Expiry Warning",
	types.NotifCompanyDocumentExpiry: "Company Document Expiry",
	types.NotifWarrantyExpiry:        "Warranty Expiry",
	types.NotifAdminExpirySummary:    "Expiry Summary",
}

// templateNames maps notification types to their embedded template basename.
var templateNames = map[types.NotificationType]string{
	types.NotifDocumentExpiryWarning: "document_expiry_warning",
	types.NotifCompanyDocumentExpiry: "company_document_expiry",
	types.NotifWarrantyExpiry:        "warranty_expiry",
	types.NotifAdminExpirySummary:    "admin_expiry_summary",
}

// TemplateComposer is the production Composer. It parses the embedded
// templates once at construction and renders HTML and plaintext pairs per
// notification type.
type TemplateComposer struct {
	htmlTemplates map[types.NotificationType]*template.Template
	textTemplates map[types.NotificationType]*texttemplate.Template
	baseDomain    string
	location      *time.Location
	logger        *slog.Logger
}

// TemplateComposerConfig holds the parameters needed to construct a
// TemplateComposer.
type TemplateComposerConfig struct {
	// BaseDomain is the platform base domain used to build tenant portal
	// links, e.g. "expirywatch.io".
	BaseDomain string
	// Location is the business timezone used to format dates. Defaults to
	// UTC when nil.
	Location *time.Location
	Logger   *slog.Logger
}

// NewTemplateComposer parses the embedded templates and returns a composer.
// Returns an error if any template fails to parse.
func NewTemplateComposer(cfg TemplateComposerConfig) (*TemplateComposer, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &TemplateComposer{
		htmlTemplates: make(map[types.NotificationType]*template.Template),
		textTemplates: make(map[types.NotificationType]*texttemplate.Template),
		baseDomain:    cfg.BaseDomain,
		location:      loc,
		logger:        logger,
	}

	baseHTML, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("composer: failed to read base.html: %w", err)
	}

	for nt, name := range templateNames {
		htmlContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.html", name))
		if err != nil {
			return nil, fmt.Errorf("composer: failed to read %s.html: %w", name, err)
		}
		htmlTmpl, err := template.New("base").Parse(string(baseHTML))
		if err != nil {
			return nil, fmt.Errorf("composer: failed to parse base.html: %w", err)
		}
		if _, err := htmlTmpl.Parse(string(htmlContent)); err != nil {
			return nil, fmt.Errorf("composer: failed to parse %s.html: %w", name, err)
		}
		c.htmlTemplates[nt] = htmlTmpl

		txtContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("composer: failed to read %s.txt: %w", name, err)
		}
		txtTmpl, err := texttemplate.New(name).Parse(string(txtContent))
		if err != nil {
			return nil, fmt.Errorf("composer: failed to parse %s.txt: %w", name, err)
		}
		c.textTemplates[nt] = txtTmpl
	}

	return c, nil
}

// Render implements Composer. It renders the alert into subject, HTML and
// plaintext bodies using the templates for the alert's notification type.
func (c *TemplateComposer) Render(ctx context.Context, alert AlertEmail) (*types.RenderedEmail, error) {
	htmlTmpl, ok := c.htmlTemplates[alert.Type]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeInternalTemplate,
			fmt.Sprintf("no HTML template for notification type %q", alert.Type),
			nil,
		)
	}
	txtTmpl, ok := c.textTemplates[alert.Type]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeInternalTemplate,
			fmt.Sprintf("no text template for notification type %q", alert.Type),
			nil,
		)
	}

	if len(alert.Items) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"alert email has no items",
			nil,
		)
	}

	data := c.buildTemplateData(alert)

	var htmlBuf bytes.Buffer
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalTemplate,
			fmt.Sprintf("failed to render HTML for %q", alert.Type),
			err,
		)
	}

	var txtBuf bytes.Buffer
	if err := txtTmpl.Execute(&txtBuf, data); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalTemplate,
			fmt.Sprintf("failed to render text for %q", alert.Type),
			err,
		)
	}

	return &types.RenderedEmail{
		Subject: data.Subject,
		HTML:    htmlBuf.String(),
		Text:    txtBuf.String(),
	}, nil
}

// buildTemplateData converts the alert into display-ready template fields.
func (c *TemplateComposer) buildTemplateData(alert AlertEmail) templateData {
	items := make([]itemView, 0, len(alert.Items))
	for _, it := range alert.Items {
		items = append(items, itemView{
			SubjectName:    it.SubjectName,
			ReferenceLabel: it.ReferenceLabel,
			ExpiresOn:      it.ExpiryDate.In(c.location).Format("Jan 2, 2006"),
			StatusLine:     statusLine(it.DaysRemaining),
			Expired:        it.Status == types.StatusExpired,
		})
	}

	return templateData{
		Subject:       c.buildSubject(alert),
		TenantName:    alert.TenantName,
		RecipientName: alert.Recipient.Name,
		Items:         items,
		PortalURL:     c.portalURL(alert.TenantSlug),
		GeneratedAt:   time.Now().In(c.location).Format("Mon, Jan 2 at 3:04 PM"),
	}
}

// buildSubject produces the subject line: single-item alerts name the record,
// multi-item alerts carry a count.
func (c *TemplateComposer) buildSubject(alert AlertEmail) string {
	prefix := subjectPrefixes[alert.Type]
	if prefix == "" {
		prefix = string(alert.Type)
	}

	switch {
	case len(alert.Items) == 1 && alert.Items[0].SubjectName != "":
		return fmt.Sprintf("%s: %s", prefix, alert.Items[0].SubjectName)
	case len(alert.Items) > 1:
		return fmt.Sprintf("%s: %d items require attention", prefix, len(alert.Items))
	default:
		return prefix
	}
}

// portalURL builds the tenant-subdomain link for the email footer.
func (c *TemplateComposer) portalURL(slug string) string {
	if slug == "" {
		return "https://" + c.baseDomain
	}
	return fmt.Sprintf("https://%s.%s/renewals", slug, c.baseDomain)
}

// statusLine renders the human-readable urgency for one record.
func statusLine(days int) string {
	switch {
	case days < -1:
		return fmt.Sprintf("expired %d days ago", -days)
	case days == -1:
		return "expired yesterday"
	case days == 0:
		return "expires today"
	case days == 1:
		return "expires tomorrow"
	default:
		return fmt.Sprintf("expires in %d days", days)
	}
}

// Compile-time assertion that TemplateComposer implements Composer.
var _ Composer = (*TemplateComposer)(nil)
