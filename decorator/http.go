package decorator

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/devopsext/asynctrace/tracer"
	"github.com/opentracing/opentracing-go/ext"
)

const (
	TagHTTPUserAgent = "http.useragent"
	TagHTTPRoute     = "http.route"
)

var (
	TagHTTPMethod     = string(ext.HTTPMethod)
	TagHTTPURL        = string(ext.HTTPUrl)
	TagHTTPStatusCode = string(ext.HTTPStatusCode)
)

// StatusCode is the response status a server handler wrote.
type StatusCode int

func requestURL(r *http.Request) string {

	if r.URL == nil {
		return ""
	}
	u := *r.URL
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" && u.Host != "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return u.String()
}

func requestPath(r *http.Request) string {

	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// PathNormalizer maps a request path to a low-cardinality resource path.
type PathNormalizer func(path string) string

// NormalizeNumericSegments replaces path segments made of digits with "?".
func NormalizeNumericSegments(path string) string {

	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s != "" && strings.Trim(s, "0123456789") == "" {
			segments[i] = "?"
		}
	}
	return strings.Join(segments, "/")
}

func decorateRequest(span *tracer.Span, r *http.Request, normalize PathNormalizer) {

	span.SetTag(TagHTTPMethod, r.Method)
	span.SetTag(TagHTTPURL, requestURL(r))

	path := requestPath(r)
	if normalize != nil {
		path = normalize(path)
	}
	span.DecorateResourceName(fmt.Sprintf("%s %s", r.Method, path))
}

// HTTPClientDecorator annotates outgoing requests and their responses.
// Responses with status 400 and above mark the span failed.
type HTTPClientDecorator struct {
	Normalize PathNormalizer
}

func (d HTTPClientDecorator) Decorate(span *tracer.Span, object interface{}) {

	switch v := object.(type) {
	case *http.Request:
		if v == nil {
			return
		}
		decorateRequest(span, v, d.Normalize)
		scheme := ""
		hostport := v.Host
		if v.URL != nil {
			scheme = v.URL.Scheme
			if v.URL.Host != "" {
				hostport = v.URL.Host
			}
		}
		host, port := splitHostPort(hostport, scheme)
		setPeer(span, host, port)
	case *http.Response:
		if v == nil {
			return
		}
		span.SetTag(TagHTTPStatusCode, v.StatusCode)
		if v.StatusCode >= http.StatusBadRequest {
			span.SetError(true)
		}
	}
}

// HTTPServerDecorator annotates incoming requests and the status their
// handler wrote. Status 500 and above marks the span failed.
type HTTPServerDecorator struct {
	Normalize PathNormalizer
}

func (d HTTPServerDecorator) Decorate(span *tracer.Span, object interface{}) {

	switch v := object.(type) {
	case *http.Request:
		if v == nil {
			return
		}
		decorateRequest(span, v, d.Normalize)
		if ua := v.UserAgent(); ua != "" {
			span.SetTag(TagHTTPUserAgent, ua)
		}
	case StatusCode:
		span.SetTag(TagHTTPStatusCode, int(v))
		if int(v) >= http.StatusInternalServerError {
			span.SetError(true)
		}
	}
}
