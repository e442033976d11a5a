package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/tguard/internal/client/models"
	"github.com/dmitrijs2005/tguard/internal/filex"
	"github.com/dmitrijs2005/tguard/internal/mimex"
	"github.com/dmitrijs2005/tguard/internal/seal"
)

type tokenSetter interface {
	setToken(token string)
}

func (a *App) send(ctx context.Context) error {
	var (
		d   models.Draft
		err error
	)

	if d.From, err = GetSimpleText(a.reader, "From (your e-mail)", a.out); err != nil {
		return err
	}
	to, err := GetList(a.reader, "To (comma separated e-mails)", a.out)
	if err != nil {
		return err
	}
	for _, addr := range to {
		items, err := GetList(a.reader, "Extra attributes for "+addr+" (name=value, comma separated, empty for none)", a.out)
		if err != nil {
			return err
		}
		r := seal.EmailRecipient(addr)
		extra, err := parseAttributes(items)
		if err != nil {
			return err
		}
		r.Attributes = append(r.Attributes, extra...)
		d.Recipients = append(d.Recipients, r)
	}
	if d.Subject, err = GetSimpleText(a.reader, "Subject", a.out); err != nil {
		return err
	}
	if d.Message, err = GetMultiline(a.reader, "Message", a.out); err != nil {
		return err
	}

	paths, err := GetList(a.reader, "Attachments (comma separated paths, empty for none)", a.out)
	if err != nil {
		return err
	}
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
		d.Attachments = append(d.Attachments, mimex.File{Filename: filepath.Base(p), Content: content})
	}

	if d.Sign, err = GetConfirm(a.reader, "Sign with your e-mail address?", a.out); err != nil {
		return err
	}
	if d.Sign {
		token, err := GetSecret("Session token for "+d.From, a.out)
		if err != nil {
			return err
		}
		if ts, ok := a.sender.(tokenSetter); ok {
			ts.setToken(string(token))
		}
		wipe(token)
	}

	ids, err := a.sender.Send(ctx, d)
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "message sent", "recipients", len(ids))
	for i, id := range ids {
		fmt.Fprintf(a.out, "Sent to %s: %s\n", d.Recipients[i].To, id)
	}
	return nil
}

// attributeNames are the short names accepted for extra attributes.
var attributeNames = map[string]string{
	"name":  seal.NameAttribute,
	"iban":  seal.IBANAttribute,
	"phone": seal.PhoneAttribute,
}

// parseAttributes turns name=value items into attributes. A name is one of
// attributeNames or a full attribute identifier.
func parseAttributes(items []string) ([]seal.Attribute, error) {
	var out []seal.Attribute
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("attribute %q: want name=value", item)
		}
		id, known := attributeNames[strings.ToLower(name)]
		if !known {
			if strings.Count(name, ".") != 3 {
				return nil, fmt.Errorf("unknown attribute %q", name)
			}
			id = name
		}
		if len([]rune(value)) > seal.MaxAttributeValueLength {
			return nil, fmt.Errorf("attribute %q: value too long", name)
		}
		out = append(out, seal.Attribute{Identifier: id, Value: value})
	}
	return out, nil
}

func (a *App) open(ctx context.Context, id string) error {
	token, err := GetSecret("Session token", a.out)
	if err != nil {
		return err
	}
	defer wipe(token)

	r, err := a.opener.Open(ctx, id, string(token))
	if err != nil {
		return err
	}

	a.printMessage(r)
	a.keep(ctx, r)
	return nil
}

func (a *App) openFile(ctx context.Context, path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	token, err := GetSecret("Session token", a.out)
	if err != nil {
		return err
	}
	defer wipe(token)

	r, err := a.opener.OpenFile(ctx, blob, string(token))
	if err != nil {
		return err
	}
	a.printMessage(r)
	return nil
}

// keep stores r in the inbox when it is unlocked.
func (a *App) keep(ctx context.Context, r *models.Received) {
	if !a.inbox.Unlocked() {
		return
	}
	if err := a.inbox.Save(ctx, r); err != nil {
		a.logger.Warn(ctx, "message not kept in inbox", "id", r.ID, "error", err)
		return
	}
	fmt.Fprintln(a.out, "Saved to inbox.")
}

func (a *App) list(ctx context.Context) error {
	items, err := a.inbox.List(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Inbox is empty.")
		return nil
	}
	for _, it := range items {
		mark := " "
		if it.Signed {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %s  %s  %-30s %s\n", mark, it.ID, it.OpenedAt.Format("2006-01-02 15:04"), it.From, it.Subject)
	}
	return nil
}

func (a *App) show(ctx context.Context, id string) error {
	r, err := a.inbox.Get(ctx, id)
	if err != nil {
		return err
	}
	a.printMessage(r)
	return nil
}

func (a *App) save(ctx context.Context, id string) error {
	r, err := a.inbox.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(r.Attachments) == 0 {
		fmt.Fprintln(a.out, "No attachments.")
		return nil
	}

	dir, err := filex.EnsureDir(filepath.Join(a.config.AttachmentDir, id))
	if err != nil {
		return err
	}
	for _, f := range r.Attachments {
		p, err := filex.WriteUnique(dir, f.Filename, f.Content)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Saved", p)
	}
	return nil
}

func (a *App) printMessage(r *models.Received) {
	var b strings.Builder
	if r.ID != "" {
		fmt.Fprintf(&b, "ID:      %s\n", r.ID)
	}
	if r.From != "" {
		fmt.Fprintf(&b, "From:    %s\n", r.From)
	}
	fmt.Fprintf(&b, "To:      %s\n", r.To)
	for _, attr := range r.Attributes {
		if attr.Identifier != seal.EmailAttribute {
			fmt.Fprintf(&b, "Sealed:  %s = %s\n", attr.Identifier, attr.Value)
		}
	}
	if r.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", r.Subject)
	}
	if r.Signed {
		b.WriteString("Signed:  verified sender\n")
	} else {
		b.WriteString("Signed:  no\n")
	}
	b.WriteString("\n")
	b.WriteString(r.Message)
	b.WriteString("\n")
	for _, f := range r.Attachments {
		fmt.Fprintf(&b, "[attachment] %s (%s, %d bytes)\n", f.Filename, f.MimeType, len(f.Content))
	}
	fmt.Fprint(a.out, b.String())
}
