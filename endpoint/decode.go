package endpoint

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/gorilla/schema"
)

// defaultFieldLimit is the maximum byte length of a field value when the
// field has no maxLength tag.
var defaultFieldLimit = 16 * 1024 // 16KB

var queryDecoder = schema.NewDecoder()

func init() {
	queryDecoder.SetAliasTag("query")
	queryDecoder.IgnoreUnknownKeys(true)
}

// Unmarshal populates dst (must be a non-nil pointer to a struct) from the
// request.
//
// Supported struct tags:
//   - `query:"name"`: URL query parameters, decoded with gorilla/schema
//   - `header:"name"`: request headers
//   - `cookie:"name"`: cookies
//   - `body:""`: the request body; at most one field
//   - `maxLength:"n"`: maximum byte length of each value
//
// A tag value of "-" ignores the field; an empty name defaults to the field
// name lowercased. If a field carries several source tags, the first source
// with data wins, in the order query, header, cookie, body. Fields with no
// data are left unchanged.
//
// A body field of type string or []byte receives the raw body. Any other
// type is decoded as JSON, and the request must declare a JSON content type.
//
// If `maxLength` is absent, a limit of 16KB applies. `maxLength:""` or
// `maxLength:"0"` removes the limit. Values over the limit are a 400 error.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct (or pointer to struct)"))
	}

	var query url.Values
	if r.URL != nil {
		query = r.URL.Query()
	}
	fromQuery := url.Values{}
	bodyField := ""

	t := root.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := root.Field(i)
		tags, err := fieldTags(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}
		if tags == nil {
			continue
		}
		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}

	tagLoop:
		for _, tag := range tags {
			var vals []string
			switch tag.source {
			case "query":
				vals = query[tag.name]
			case "header":
				vals = r.Header.Values(tag.name)
			case "cookie":
				for _, ck := range r.Cookies() {
					if ck.Name == tag.name {
						vals = append(vals, ck.Value)
					}
				}
			case "body":
				if bodyField != "" {
					return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: multiple body fields: %s and %s", bodyField, sf.Name))
				}
				bodyField = sf.Name
				ok, err := setBody(r, fv, limit)
				if err != nil {
					return err
				}
				if ok {
					break tagLoop
				}
				continue
			}
			if len(vals) == 0 {
				continue
			}
			for _, s := range vals {
				if limit > 0 && len(s) > limit {
					return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: value exceeds max length %d", tag.source, tag.name, sf.Name, limit))
				}
			}
			if tag.source == "query" {
				fromQuery[tag.name] = vals
			} else if err := setField(fv, vals); err != nil {
				return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: %w", tag.source, tag.name, sf.Name, err))
			}
			break
		}
	}

	if len(fromQuery) != 0 {
		if err := queryDecoder.Decode(root.Addr().Interface(), fromQuery); err != nil {
			return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: query: %w", err))
		}
	}
	return nil
}

type sourceTag struct {
	source string
	name   string
}

var sources = []string{"query", "header", "cookie", "body"}

// fieldTags returns the source tags of sf in precedence order, or nil if
// the field is untagged or ignored.
func fieldTags(sf reflect.StructField) ([]sourceTag, error) {
	var tags []sourceTag
	for _, src := range sources {
		val, ok := sf.Tag.Lookup(src)
		if !ok {
			continue
		}
		name, opts, _ := strings.Cut(val, ",")
		name = strings.TrimSpace(name)
		if name == "-" {
			return nil, nil
		}
		if strings.TrimSpace(opts) != "" && src != "query" {
			return nil, fmt.Errorf("unknown %s tag options %q", src, opts)
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		tags = append(tags, sourceTag{source: src, name: name})
	}
	return tags, nil
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	val, has := sf.Tag.Lookup("maxLength")
	if !has {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("maxLength: invalid integer %q", val)
	}
	if n < 0 {
		return 0, errors.New("maxLength: must be >= 0")
	}
	return n, nil
}

func setBody(r *http.Request, fv reflect.Value, limit int) (bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return false, nil
	}
	ft := fv.Type()
	if ft.Kind() == reflect.Pointer {
		ft = ft.Elem()
	}
	raw := ft.Kind() == reflect.String || (ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Uint8)
	if !raw && !requestBodyIsJSON(r) {
		mt := requestBodyMediaType(r)
		if mt == "" {
			mt = "(missing)"
		}
		return false, newEndpointError(http.StatusUnsupportedMediaType, "", fmt.Errorf("endpoint: decode: body: unsupported media type %s", mt))
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
	}
	if limit > 0 && len(b) > limit {
		return false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: value exceeds max length %d", limit))
	}
	if len(b) == 0 {
		return false, nil
	}

	for fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	switch {
	case fv.Kind() == reflect.String:
		fv.SetString(string(b))
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Uint8:
		fv.SetBytes(b)
	default:
		if err := json.Unmarshal(b, fv.Addr().Interface()); err != nil {
			return false, newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
		}
	}
	return true, nil
}

func requestBodyIsJSON(r *http.Request) bool {
	mt := requestBodyMediaType(r)
	return strings.HasPrefix(mt, "application/json") || strings.HasSuffix(mt, "+json")
}

func requestBodyMediaType(r *http.Request) string {
	ct := strings.TrimSpace(r.Header.Get("Content-Type"))
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return strings.ToLower(mt)
}

// setField stores header or cookie values into v. Slice fields receive
// every value; other fields receive the first.
func setField(v reflect.Value, values []string) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() != reflect.Uint8 && !isTextUnmarshaler(v) {
		slice := reflect.MakeSlice(v.Type(), 0, len(values))
		for _, s := range values {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setFieldFromString(elem, s); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		v.Set(slice)
		return nil
	}
	return setFieldFromString(v, values[0])
}

func isTextUnmarshaler(v reflect.Value) bool {
	return v.CanAddr() && v.Addr().Type().Implements(reflect.TypeFor[encoding.TextUnmarshaler]())
}

func setFieldFromString(v reflect.Value, s string) error {
	if v.CanAddr() {
		if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(s))
		}
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported slice type %s", v.Type())
		}
		v.SetBytes([]byte(s))
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
