package common

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"path"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/devopsext/utils"
	"github.com/rs/xid"
)

func IsEmpty(s string) bool {
	return utils.IsEmpty(s)
}

// MakeHttpClient bounds dialing, the TLS handshake and the whole request
// by timeout.
func MakeHttpClient(timeout time.Duration, insecure bool) *http.Client {

	var transport = &http.Transport{
		DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
		TLSHandshakeTimeout: timeout,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecure},
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func getLastPath(s string, limit int) string {

	index := 0
	dir := s
	var arr []string

	for !IsEmpty(dir) && dir != "." && dir != "/" {
		if index >= limit {
			break
		}
		index++
		arr = append([]string{path.Base(dir)}, arr...)
		dir = path.Dir(dir)
	}
	return path.Join(arr...)
}

func GetCallerInfo(offset int) (string, string, int) {

	pc := make([]uintptr, 15)
	n := runtime.Callers(offset, pc)
	frames := runtime.CallersFrames(pc[:n])
	frame, _ := frames.Next()

	function := getLastPath(frame.Function, 1)
	file := getLastPath(frame.File, 3)
	line := frame.Line

	return function, file, line
}

func HasElem(s interface{}, elem interface{}) bool {

	arrV := reflect.ValueOf(s)

	if arrV.Kind() == reflect.Slice {
		for i := 0; i < arrV.Len(); i++ {

			// XXX - panics if slice element points to an unexported struct field
			if arrV.Index(i).Interface() == elem {
				return true
			}
		}
	}
	return false
}

func GetGuid() string {
	return xid.New().String()
}

// GetKeyValues parses "k1=v1,k2=${ENV:default}" into a map. Values of the
// ${NAME:default} form are read from the environment.
func GetKeyValues(s string) map[string]string {

	r := make(map[string]string)

	for _, p := range strings.Split(s, ",") {

		if utils.IsEmpty(p) {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		k := strings.TrimSpace(kv[0])
		if utils.IsEmpty(k) {
			continue
		}
		v := ""
		if len(kv) > 1 {
			v = strings.TrimSpace(kv[1])
		}

		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			ed := strings.SplitN(v[2:len(v)-1], ":", 2)
			d := ""
			if len(ed) > 1 {
				d = ed[1]
			}
			v = utils.EnvGet(ed[0], "").(string)
			if v == "" {
				v = d
			}
		}
		r[k] = v
	}
	return r
}

// TraceIDUint64ToHex renders a 64-bit trace id as a 128-bit hex id with a
// zero high part.
func TraceIDUint64ToHex(id uint64) string {
	return fmt.Sprintf("%032x", id)
}

func TraceIDHexToUint64(s string) uint64 {

	if len(s) > 16 {
		s = s[len(s)-16:]
	}
	return SpanIDHexToUint64(s)
}

func SpanIDUint64ToHex(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

func SpanIDHexToUint64(s string) uint64 {

	i, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return i
}
