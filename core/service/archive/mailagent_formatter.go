// Package archive implements export formatting and the export writer that
// turns email index rows into access-controlled archive files.
package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"

	"github.com/goccy/go-json"
)

// =============================================================================
// Formatter Registry
// =============================================================================

// FormatterRegistry maps format names to formatters. Lookup is
// case-insensitive; registration is safe for concurrent use.
type FormatterRegistry struct {
	mu      sync.RWMutex
	formats map[string]out.ExportFormatter
}

func NewFormatterRegistry() *FormatterRegistry {
	return &FormatterRegistry{formats: make(map[string]out.ExportFormatter)}
}

// DefaultFormatters returns a registry with the built-in formats.
func DefaultFormatters() *FormatterRegistry {
	r := NewFormatterRegistry()
	r.Register("json", &JSONFormatter{Indent: true})
	r.Register("mbox", &MboxFormatter{})
	r.Register("csv", &CSVFormatter{})
	return r
}

func (r *FormatterRegistry) Register(name string, f out.ExportFormatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formats[strings.ToLower(name)] = f
}

func (r *FormatterRegistry) Get(name string) (out.ExportFormatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[strings.ToLower(name)]
	return f, ok
}

// Names returns the registered format names, sorted.
func (r *FormatterRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.formats))
	for name := range r.formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// JSON
// =============================================================================

// JSONFormatter renders the rows as a JSON array.
type JSONFormatter struct {
	Indent bool
}

var _ out.ExportFormatter = (*JSONFormatter)(nil)

func (f *JSONFormatter) FormatEmails(emails []*domain.EmailIndex) ([]byte, error) {
	if emails == nil {
		emails = []*domain.EmailIndex{}
	}
	if f.Indent {
		return json.MarshalIndent(emails, "", "  ")
	}
	return json.Marshal(emails)
}

func (f *JSONFormatter) GetFileExtension() string { return "json" }

// =============================================================================
// Mbox
// =============================================================================

// MboxFormatter renders rows in mboxrd form: one "From " separator line per
// message, body lines starting with "From " quoted with ">".
type MboxFormatter struct{}

var _ out.ExportFormatter = (*MboxFormatter)(nil)

func (f *MboxFormatter) FormatEmails(emails []*domain.EmailIndex) ([]byte, error) {
	var buf bytes.Buffer

	for _, e := range emails {
		date := time.UnixMilli(e.Date).UTC()

		fmt.Fprintf(&buf, "From %s %s\n", mboxAddress(e.Sender), date.Format(time.ANSIC))
		fmt.Fprintf(&buf, "Message-ID: <%s>\n", e.ID)
		fmt.Fprintf(&buf, "Date: %s\n", date.Format(time.RFC1123Z))
		fmt.Fprintf(&buf, "From: %s\n", headerValue(e.Sender))
		if len(e.Recipients) > 0 {
			fmt.Fprintf(&buf, "To: %s\n", headerValue(strings.Join(e.Recipients, ", ")))
		}
		fmt.Fprintf(&buf, "Subject: %s\n", headerValue(e.Subject))
		if len(e.Labels) > 0 {
			fmt.Fprintf(&buf, "X-Labels: %s\n", strings.Join(e.Labels, ","))
		}
		if e.Category != nil {
			fmt.Fprintf(&buf, "X-Category: %s\n", *e.Category)
		}
		buf.WriteString("\n")

		for _, line := range strings.Split(e.Snippet, "\n") {
			if strings.HasPrefix(line, "From ") {
				buf.WriteString(">")
			}
			buf.WriteString(line)
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

func (f *MboxFormatter) GetFileExtension() string { return "mbox" }

// mboxAddress strips whitespace so the separator line stays parseable.
func mboxAddress(sender string) string {
	addr := strings.TrimSpace(sender)
	if start := strings.LastIndexByte(addr, '<'); start >= 0 {
		if end := strings.IndexByte(addr[start:], '>'); end > 0 {
			addr = addr[start+1 : start+end]
		}
	}
	addr = strings.Join(strings.Fields(addr), "")
	if addr == "" {
		addr = "unknown@localhost"
	}
	return addr
}

// headerValue folds newlines out of a header value.
func headerValue(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}

// =============================================================================
// CSV
// =============================================================================

// CSVFormatter renders a header row plus one record per email.
type CSVFormatter struct{}

var _ out.ExportFormatter = (*CSVFormatter)(nil)

var csvHeader = []string{
	"id", "thread_id", "subject", "sender", "recipients", "date", "year",
	"size_estimate", "has_attachments", "labels", "snippet", "archived",
	"category",
}

func (f *CSVFormatter) FormatEmails(emails []*domain.EmailIndex) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range emails {
		category := ""
		if e.Category != nil {
			category = string(*e.Category)
		}
		record := []string{
			e.ID,
			e.ThreadID,
			e.Subject,
			e.Sender,
			strings.Join(e.Recipients, ";"),
			strconv.FormatInt(e.Date, 10),
			strconv.Itoa(e.Year),
			strconv.FormatInt(e.SizeEstimate, 10),
			strconv.FormatBool(e.HasAttachments),
			strings.Join(e.Labels, ";"),
			e.Snippet,
			strconv.FormatBool(e.Archived),
			category,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *CSVFormatter) GetFileExtension() string { return "csv" }
