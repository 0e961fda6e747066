package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/coachsync/internal/client/auth"
	"github.com/iudanet/coachsync/internal/client/state"
	syncer "github.com/iudanet/coachsync/internal/client/sync"
	"github.com/iudanet/coachsync/internal/models"
)

// render writes v as YAML, or runs text for the default format.
func (o *RootOptions) render(w io.Writer, v any, text func(w io.Writer) error) error {
	if o.Format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	return text(w)
}

// table writes tab separated rows aligned in columns.
func table(w io.Writer, header string, rows []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, header); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, row); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type statusView struct {
	ExpiresAt  *time.Time `yaml:"expires_at,omitempty"`
	LastSyncAt *time.Time `yaml:"last_sync_at,omitempty"`
	Server     string     `yaml:"server"`
	Username   string     `yaml:"username,omitempty"`
	UserID     string     `yaml:"user_id,omitempty"`
	Pending    int        `yaml:"pending"`
	Failed     int        `yaml:"failed"`
	LoggedIn   bool       `yaml:"logged_in"`
	Expired    bool       `yaml:"expired"`
}

func newStatusView(server string, st *auth.Status, snap state.Snapshot) statusView {
	return statusView{
		ExpiresAt:  timePtr(st.ExpiresAt),
		LastSyncAt: timePtr(snap.LastSyncAt),
		Server:     server,
		Username:   st.Username,
		UserID:     st.UserID,
		Pending:    snap.PendingCount,
		Failed:     snap.FailedCount,
		LoggedIn:   st.LoggedIn,
		Expired:    st.Expired,
	}
}

const statusTemplate = `Server:     {{.Server}}
{{- if .LoggedIn}}
Username:   {{.Username}}
User ID:    {{.UserID}}
Session:    {{if .Expired}}expired, run 'coachsync login'{{else}}active until {{fmtTime .ExpiresAt}}{{end}}
{{- else}}
Session:    not authenticated, run 'coachsync login'
{{- end}}
Pending:    {{.Pending}}
Failed:     {{.Failed}}
Last sync:  {{fmtTime .LastSyncAt}}
`

type passView struct {
	Skipped    string `yaml:"skipped,omitempty"`
	Attempted  int    `yaml:"attempted"`
	Succeeded  int    `yaml:"succeeded"`
	Transient  int    `yaml:"transient"`
	Permanent  int    `yaml:"permanent"`
	Reconciled int    `yaml:"reconciled"`
	Pending    int    `yaml:"pending"`
	Failed     int    `yaml:"failed"`
}

func newPassView(res syncer.PassResult, snap state.Snapshot) passView {
	return passView{
		Skipped:    string(res.Skipped),
		Attempted:  res.Attempted,
		Succeeded:  res.Succeeded,
		Transient:  res.Transient,
		Permanent:  res.Permanent,
		Reconciled: res.Reconciled,
		Pending:    snap.PendingCount,
		Failed:     snap.FailedCount,
	}
}

const passTemplate = `{{if .Skipped}}Sync skipped: {{.Skipped}}
{{else}}Sync complete
  Delivered:   {{.Succeeded}}/{{.Attempted}}
  Reconciled:  {{.Reconciled}}
  Retrying:    {{.Transient}}
  Failed:      {{.Permanent}}
{{end}}Pending:     {{.Pending}}
Dead letter: {{.Failed}}
`

var templates = func() *template.Template {
	t := template.New("cli").Funcs(template.FuncMap{"fmtTime": formatTime})
	template.Must(t.New("status").Parse(statusTemplate))
	template.Must(t.New("pass").Parse(passTemplate))
	return t
}()

func executeTemplate(w io.Writer, name string, v any) error {
	t := templates.Lookup(name)
	if t == nil {
		return fmt.Errorf("unknown template %q", name)
	}
	return t.Execute(w, v)
}

type queueItemView struct {
	CreatedAt   time.Time  `yaml:"created_at"`
	NextRetryAt *time.Time `yaml:"next_retry_at,omitempty"`
	ID          string     `yaml:"id"`
	Method      string     `yaml:"method"`
	URL         string     `yaml:"url"`
	Operation   string     `yaml:"operation,omitempty"`
	Entity      string     `yaml:"entity,omitempty"`
	Priority    string     `yaml:"priority"`
	LastError   string     `yaml:"last_error,omitempty"`
	RetryCount  int        `yaml:"retry_count"`
	Failed      bool       `yaml:"failed"`
}

func newQueueItemViews(items []*models.QueueItem, maxRetries int) []queueItemView {
	views := make([]queueItemView, 0, len(items))
	for _, item := range items {
		v := queueItemView{
			CreatedAt:   item.Timestamp,
			NextRetryAt: item.NextRetryAt,
			ID:          item.ID,
			Method:      item.Method,
			URL:         item.URL,
			Priority:    string(item.Priority),
			LastError:   item.LastError,
			RetryCount:  item.RetryCount,
			Failed:      item.RetryCount >= maxRetries,
		}
		if item.Operation != nil {
			v.Operation = string(item.Operation.Kind())
			v.Entity = fmt.Sprintf("%s/%s", item.Operation.EntityTable(), item.Operation.EntityID())
		}
		views = append(views, v)
	}
	return views
}

func writeQueueItems(w io.Writer, views []queueItemView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "Queue is empty")
		return err
	}
	rows := make([]string, 0, len(views))
	for _, v := range views {
		lastErr := v.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		rows = append(rows, fmt.Sprintf("%s\t%s %s\t%s\t%d\t%s\t%s",
			v.ID, v.Method, v.URL, v.Operation, v.RetryCount, formatTime(v.NextRetryAt), lastErr))
	}
	return table(w, "ID\tREQUEST\tOPERATION\tRETRIES\tNEXT RETRY\tLAST ERROR", rows)
}
