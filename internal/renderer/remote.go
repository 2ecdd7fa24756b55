package renderer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/logging"
	"github.com/conneroisu/plantctl/internal/validation"
	"golang.org/x/net/html"
)

const (
	// HostEnv names the environment variable holding the server URL.
	HostEnv = "PLANTUML_HOST"
	// DefaultHost is the official PlantUML server.
	DefaultHost = "http://www.plantuml.com/plantuml"

	officialVersion = "Official Site"
)

var serverVersionPattern = regexp.MustCompile(`(?i)version\s*(\d)\.?(\d{4})\.?(\d{1,2})`)

// ServerVersion is a parsed PlantUML version such as 1.2023.10.
type ServerVersion struct {
	Major int
	Year  int
	Patch int
}

// Less reports whether v is older than other.
func (v ServerVersion) Less(other ServerVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Year != other.Year {
		return v.Year < other.Year
	}
	return v.Patch < other.Patch
}

// String returns the dotted version
func (v ServerVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Year, v.Patch)
}

// ParseServerVersion extracts a version from server footer text.
func ParseServerVersion(text string) (ServerVersion, error) {
	m := serverVersionPattern.FindStringSubmatch(text)
	if m == nil {
		return ServerVersion{}, plerrors.NewRenderError(plerrors.ErrCodeBadVersion,
			fmt.Sprintf("no version found in %q", text), nil)
	}

	major, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])

	return ServerVersion{Major: major, Year: year, Patch: patch}, nil
}

// pdfSince is the first server release able to render PDF.
var pdfSince = ServerVersion{Major: 1, Year: 2023}

// Remote renders diagrams through a PlantUML server.
type Remote struct {
	host   *url.URL
	client *http.Client
	logger logging.Logger
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = logger
	}
}

// NewRemote validates host and returns a remote renderer.
func NewRemote(host string, opts ...RemoteOption) (*Remote, error) {
	u, err := validation.NormalizeHost(host)
	if err != nil {
		return nil, err
	}

	r := &Remote{
		host:   u,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("renderer.remote")

	return r, nil
}

// Kind implements Renderer.
func (r *Remote) Kind() Kind {
	return KindRemote
}

// Host returns the normalized server URL.
func (r *Remote) Host() string {
	return r.host.String()
}

// Describe implements Renderer.
func (r *Remote) Describe() map[string]string {
	return map[string]string{"host": r.Host()}
}

// IsOfficial reports whether the host is the public plantuml.com server.
func (r *Remote) IsOfficial() bool {
	hostname := r.host.Hostname()
	if hostname != "plantuml.com" && hostname != "www.plantuml.com" {
		return false
	}
	segments := strings.Split(strings.Trim(r.host.Path, "/"), "/")
	return len(segments) > 0 && segments[0] == "plantuml"
}

func (r *Remote) requestURL(path string) string {
	u := *r.host
	if path != "" {
		u.Path = r.host.Path + "/" + path
	}
	return u.String()
}

// URL returns the server URL of the rendered resource.
func (r *Remote) URL(format Format, source string) string {
	return r.requestURL(format.String() + "/" + Encode(source))
}

// HomepageURL returns the URL of the online editor preloaded with source.
func (r *Remote) HomepageURL(source string) string {
	return r.requestURL("uml/" + Encode(source))
}

func (r *Remote) get(ctx context.Context, path string) ([]byte, error) {
	target := r.requestURL(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, plerrors.NewNetworkError(plerrors.ErrCodeInternalError, "failed to build request", err)
	}

	r.logger.Debug(ctx, "Requesting", "url", target)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, plerrors.NewNetworkError(plerrors.ErrCodeHTTPStatus, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, plerrors.NewNetworkError(plerrors.ErrCodeHTTPStatus, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: target, StatusCode: resp.StatusCode, Body: body}
	}

	return body, nil
}

// Version implements Renderer. The official site does not publish its
// version; other servers report it in the homepage footer.
func (r *Remote) Version(ctx context.Context) (string, error) {
	if r.IsOfficial() {
		return officialVersion, nil
	}

	body, err := r.get(ctx, "")
	if err != nil {
		return "", err
	}

	version, err := footerText(body)
	if err != nil {
		return "", err
	}

	lower := strings.ToLower(version)
	if version == "" || !strings.Contains(lower, "plantuml") || !strings.Contains(lower, "version") {
		return "", plerrors.NewRenderError(plerrors.ErrCodeBadVersion,
			fmt.Sprintf("invalid version information from homepage - %q", version), nil)
	}

	return version, nil
}

// ServerVersion parses the version of a non-official server.
func (r *Remote) ServerVersion(ctx context.Context) (ServerVersion, error) {
	text, err := r.Version(ctx)
	if err != nil {
		return ServerVersion{}, err
	}
	return ParseServerVersion(text)
}

// Check implements Renderer.
func (r *Remote) Check(ctx context.Context) error {
	_, err := r.Version(ctx)
	return err
}

func (r *Remote) checkFormat(ctx context.Context, format Format) error {
	if format != FormatPDF {
		return nil
	}

	if r.IsOfficial() {
		return plerrors.NewRenderError(plerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("resource type %s not supported for plantuml official site - %s", format, r.Host()), nil)
	}

	v, err := r.ServerVersion(ctx)
	if err != nil {
		return err
	}
	if v.Less(pdfSince) {
		return plerrors.NewRenderError(plerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("resource type %s not supported for plantuml server lower than 1.2023 - %s", format, v), nil)
	}

	return nil
}

// Render implements Renderer.
func (r *Remote) Render(ctx context.Context, format Format, source string) ([]byte, error) {
	if err := r.checkFormat(ctx, format); err != nil {
		return nil, err
	}
	return r.get(ctx, format.String()+"/"+Encode(source))
}

// footerText returns the whitespace-collapsed text of the element with
// id="footer".
func footerText(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", plerrors.NewRenderError(plerrors.ErrCodeBadVersion, "failed to parse homepage", err)
	}

	footer := findByID(doc, "footer")
	if footer == nil {
		return "", nil
	}

	var sb strings.Builder
	collectText(footer, &sb)
	return strings.Join(strings.Fields(sb.String()), " "), nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key == "id" && attr.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

var _ Renderer = (*Remote)(nil)
