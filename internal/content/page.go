package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
)

// PageFetcher returns the visible text of a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, rawURL string) (string, error)

func (f PageFetcherFunc) Fetch(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}

// PageOptions configures an HTTPPageFetcher.
type PageOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	// AllowPrivate disables the check that refuses connections to
	// loopback, link-local or private addresses.
	AllowPrivate bool
}

// HTTPPageFetcher downloads pages over HTTP and extracts their text with goquery.
type HTTPPageFetcher struct {
	client *http.Client
	opts   PageOptions
	log    *logging.Logger
}

const maxRedirects = 5

// blockSelector lists elements whose text is kept as one paragraph.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, figcaption, td, dt, dd"

func NewHTTPPageFetcher(opts PageOptions, log *logging.Logger) *HTTPPageFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	f := &HTTPPageFetcher{opts: opts, log: log.Sub("content.page")}

	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.AllowPrivate {
		// The address is checked after resolution, on every connection,
		// redirects included. A proxy would hide the real destination.
		dialer.Control = refusePrivate
		transport.Proxy = nil
	}
	transport.DialContext = dialer.DialContext

	f.client = &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return f
}

func (f *HTTPPageFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errPrivateTarget) {
			f.log.Warn().Str("url", rawURL).Msg("refused private address")
		}
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	f.log.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("page fetched")

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching page: unexpected status %s", resp.Status)
	}

	body := io.LimitReader(resp.Body, f.opts.MaxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/plain":
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading page: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return "", fmt.Errorf("parsing page: %w", err)
		}
		return VisibleText(doc), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

// VisibleText returns the readable text of doc, one paragraph per block
// element, with the title first. A page whose body has no text yields ""
// even when it has a title.
func VisibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template, svg, iframe, nav, header, footer, form, aside").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var paragraphs []string
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		if text := collapse(root.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	if len(paragraphs) == 0 {
		return ""
	}
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		paragraphs = append([]string{title}, paragraphs...)
	}
	return strings.Join(paragraphs, "\n\n")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// refusePrivate is a net.Dialer Control hook. It sees the resolved
// address, so a hostname cannot pass a lookup and then connect elsewhere.
func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errPrivateTarget, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", errPrivateTarget, host)
	}
	return nil
}

var errPrivateTarget = errors.New("refusing to fetch private address")

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
