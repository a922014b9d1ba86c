package export

import (
	"context"
	"crypto/md5" // #nosec G501 - file names only, not a security boundary
	"encoding/hex"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/serialize"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// attachmentLink matches a markdown link target such as
// (attachment:12/a1b2c3/screen%20shot.png "tooltip").
var attachmentLink = regexp.MustCompile(`(?s)\((?P<link>\s*attachment:\d+/.+?)(?P<tooltip>\s+['"].*?['"])?\s*\)`)

var attachmentPrefix = regexp.MustCompile(`^\s*attachment:\d+/`)

// supportedContentTypes are the attachment types the importer accepts.
var supportedContentTypes = []string{
	"application/gzip",
	"application/octet-stream",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/zip",
	"image/gif",
	"image/jpeg",
	"image/png",
	"text/plain",
	"video/mp4",
	"video/quicktime",
}

// Bitbucket serves log files as octet streams.
var contentTypeOverrides = map[string]string{
	"application/octet-stream": "text/x-log",
}

// attachment is one attachment link found in a body.
type attachment struct {
	link    string
	tooltip string

	// path is the decoded directory and file name inside the
	// repository's attachment store.
	path []string
}

func newAttachment(link, tooltip string) *attachment {
	p := attachmentPrefix.ReplaceAllString(link, "")
	p = strings.ReplaceAll(p, "+", " ")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	dir, file := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "."
	}
	return &attachment{link: link, tooltip: tooltip, path: []string{dir, file}}
}

// filename is the name the attachment is stored under in the archive.
func (a *attachment) filename() string {
	sum := md5.Sum([]byte(a.link)) // #nosec G401
	return hex.EncodeToString(sum[:]) + filepath.Ext(a.link)
}

func (a *attachment) assetName() string {
	return a.path[len(a.path)-1]
}

func (a *attachment) assetURL() string {
	return "tarball://root/attachments/" + a.filename()
}

// parseContentType normalizes a Content-Type header to its media type.
func parseContentType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

// attachmentParent is the record whose body links the attachments.
type attachmentParent struct {
	Type        string
	URL         string
	User        *types.User
	CreatedDate int64
}

// exportAttachments archives every supported attachment linked from body
// and returns body with those links pointing at their new location.
// Unsupported attachments keep their original link.
func (r *repositoryExporter) exportAttachments(ctx context.Context, parent attachmentParent, body string, order *int) (string, error) {
	matches := attachmentLink.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return body, nil
	}

	linkIdx := attachmentLink.SubexpIndex("link")
	tooltipIdx := attachmentLink.SubexpIndex("tooltip")

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(body[last:m[0]])
		last = m[1]

		link := body[m[2*linkIdx]:m[2*linkIdx+1]]
		tooltip := ""
		if m[2*tooltipIdx] >= 0 {
			tooltip = body[m[2*tooltipIdx]:m[2*tooltipIdx+1]]
		}

		a := newAttachment(link, tooltip)
		rewritten, err := r.exportAttachment(ctx, parent, a, order)
		if err != nil {
			return "", err
		}
		if rewritten == "" {
			b.WriteString("(" + link + tooltip + ")")
			continue
		}
		b.WriteString("(" + rewritten + tooltip + ")")
	}
	b.WriteString(body[last:])
	return b.String(), nil
}

// exportAttachment downloads a and records it. It returns the rewritten
// link, or "" when the attachment was skipped.
func (r *repositoryExporter) exportAttachment(ctx context.Context, parent attachmentParent, a *attachment, order *int) (string, error) {
	rewritten := r.urls.AttachmentURL(r.repo, a.path...)

	raw, err := r.api.AttachmentContentType(ctx, a.path)
	if err != nil {
		return "", quietly(err, "attachment", rewritten)
	}
	contentType := parseContentType(raw)
	if !slices.Contains(supportedContentTypes, contentType) {
		debug.Warn("attachment", rewritten, "was skipped because the content type `"+contentType+"` is not supported")
		return "", nil
	}
	if override, ok := contentTypeOverrides[contentType]; ok {
		contentType = override
	}

	body, err := r.api.Attachment(ctx, a.path)
	if err != nil {
		return "", quietly(err, "attachment", rewritten)
	}
	_, err = r.builder.SaveAttachment(body, a.filename())
	_ = body.Close()
	if err != nil {
		return "", err
	}

	err = r.record(ctx, "attachment", rewritten, order, func() (any, error) {
		return r.serializer.Attachment(serialize.AttachmentInput{
			URL:         rewritten,
			ParentType:  parent.Type,
			ParentURL:   parent.URL,
			User:        parent.User,
			AssetName:   a.assetName(),
			ContentType: contentType,
			AssetURL:    a.assetURL(),
			CreatedDate: parent.CreatedDate,
		})
	})
	if err := skip(err, "Unable to export attachment, see logs for details", rewritten); err != nil {
		return "", err
	}
	return rewritten, nil
}
