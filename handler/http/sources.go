package http

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"rankguard/src/infrastructure/log"
	"rankguard/src/validation"
)

const sourcesKey = "request_sources"

const maxFormMemory = 1 << 20

// requestSources returns the body then the query string of the request as
// validation sources. The body is parsed once per request.
func requestSources(c *gin.Context) []validation.Source {
	if v, ok := c.Get(sourcesKey); ok {
		return v.([]validation.Source)
	}

	query := validation.Source{}
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	sources := []validation.Source{bodySource(c), query}
	c.Set(sourcesKey, sources)
	return sources
}

func bodySource(c *gin.Context) validation.Source {
	src := validation.Source{}
	if c.Request.Body == nil {
		return src
	}

	switch c.ContentType() {
	case binding.MIMEJSON:
		raw, err := c.GetRawData()
		if err != nil || len(bytes.TrimSpace(raw)) == 0 {
			return src
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var fields map[string]interface{}
		if err := dec.Decode(&fields); err != nil {
			log.Debug("Ignoring malformed JSON body", "error", err.Error(), "request_id", c.GetString(requestIDKey))
			return src
		}
		for k, v := range fields {
			if s, ok := scalarString(v); ok {
				src[k] = s
			}
		}

	case binding.MIMEPOSTForm, binding.MIMEMultipartPOSTForm:
		if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil && c.ContentType() == binding.MIMEMultipartPOSTForm {
			log.Debug("Ignoring malformed form body", "error", err.Error(), "request_id", c.GetString(requestIDKey))
			return src
		}
		for k, vs := range c.Request.PostForm {
			if len(vs) > 0 {
				src[k] = vs[0]
			}
		}
	}

	return src
}

// scalarString renders JSON scalars the way they would appear in a query
// string. Objects and arrays are not field values.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func lookupSource(sources []validation.Source, name string) (string, bool) {
	for _, src := range sources {
		if v := src[name]; v != "" {
			return v, true
		}
	}
	return "", false
}
