package provider

import (
	"bytes"
	"html/template"
	"sort"
)

// FormField is one hidden input of a 3-D redirect form
type FormField struct {
	Name  string
	Value string
}

// SortedFields turns a field map into a stable, name-ordered list
func SortedFields(fields map[string]string) []FormField {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]FormField, 0, len(keys))
	for _, k := range keys {
		out = append(out, FormField{Name: k, Value: fields[k]})
	}
	return out
}

var autoSubmitTemplate = template.Must(template.New("threeDForm").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>3D Secure</title>
</head>
<body onload="document.threeDForm.submit()">
<form name="threeDForm" id="threeDForm" method="POST" action="{{.Action}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><p>Please click the button to continue.</p><input type="submit" value="Continue"></noscript>
</form>
</body>
</html>
`))

// RenderAutoSubmitForm renders a page that posts fields to action on load.
// Names and values are HTML escaped.
func RenderAutoSubmitForm(action string, fields []FormField) (string, error) {
	var buf bytes.Buffer
	err := autoSubmitTemplate.Execute(&buf, struct {
		Action template.URL
		Fields []FormField
	}{
		Action: template.URL(action),
		Fields: fields,
	})
	if err != nil {
		return "", Wrap(KindInternal, err, "render 3-D form")
	}
	return buf.String(), nil
}
