package render

import (
	"bytes"
	"html/template"
	"sort"
	"strconv"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/parser/http1"
)

// pageTemplate adds the browser-side probes for GET requests only.
const pageTemplate = `{{if .Navigation}}<!DOCTYPE html>` +
	`<title>Request info</title>` +
	`<style>` +
	`table, th, td { border: 1px solid #333; border-collapse: collapse; }` +
	`th, td { padding: 3px 5px; }` +
	`th { text-align: right; }` +
	`td { text-align: left; }` +
	`</style>` +
	`<h1>JavaScript test</h1>` +
	`<table>` +
	`<tr><th>new Date().toTimeString()</th><td><script>document.write(new Date().toTimeString())</script></td></tr>` +
	`<tr><th>'JavaScript'.toLowerCase()</th><td><script>document.write('JavaScript'.toLowerCase())</script></td></tr>` +
	`<tr><th>'JavaScript'.toUpperCase()</th><td><script>document.write('JavaScript'.toUpperCase())</script></td></tr>` +
	`</table>` +
	`<h1>Request info</h1>` +
	`{{else}}<h1>XMLHttpRequest info</h1>{{end}}` +
	`<table>` +
	`{{range .Rows}}<tr><th>{{.Name}}</th><td>{{.Value}}</td></tr>{{end}}` +
	`</table>` +
	`{{if .Navigation}}<script>` + "\r\n" +
	`var xmlreq = new XMLHttpRequest();` + "\r\n" +
	`xmlreq.open('POST', 'headerbugtest.php', true);` + "\r\n" +
	`xmlreq.setRequestHeader('Content-Type', 'application/json');` + "\r\n" +
	`xmlreq.onreadystatechange = function() {` + "\r\n" +
	`if (xmlreq.readyState == 4) {` + "\r\n" +
	`document.body.insertAdjacentHTML('beforeend', xmlreq.responseText);` + "\r\n" +
	`}` + "\r\n" +
	`}` + "\r\n" +
	`xmlreq.send('{}');` + "\r\n" +
	`</script>` + "\r\n" +
	`{{end}}`

var page = template.Must(template.New("page").Parse(pageTemplate))

// Row is one line of the request table.
type Row struct {
	Name  string
	Value string
}

type pageData struct {
	Navigation bool
	Rows       []Row
}

// Page renders the diagnostic page. Instance describes the process that
// answers and is appended to every table.
type Page struct {
	Instance core.InstanceInfo
}

func New(instance core.InstanceInfo) *Page {
	return &Page{Instance: instance}
}

// Render implements core.Renderer.
func (p *Page) Render(head http1.Head, info core.ConnInfo) ([]byte, error) {
	var buff bytes.Buffer
	if err := page.Execute(&buff, pageData{
		Navigation: head.Method == "GET",
		Rows:       p.Rows(head, info),
	}); err != nil {
		return nil, err
	}

	return buff.Bytes(), nil
}

// Rows lists the table content: the start line, every header sorted by name,
// the connection and then whatever is known about the instance.
func (p *Page) Rows(head http1.Head, info core.ConnInfo) []Row {
	rows := make([]Row, 0, 3+len(head.Headers)+8)
	rows = append(rows,
		Row{"Method", head.Method},
		Row{"Path", head.Path},
		Row{"Protocol", head.Protocol},
	)

	names := make([]string, 0, len(head.Headers))
	for name := range head.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rows = append(rows, Row{name, head.Headers[name]})
	}

	rows = append(rows,
		Row{"Connection ID", strconv.FormatUint(info.ID, 10)},
		Row{"Peer", info.RemoteAddr},
	)

	return appendInstance(rows, p.Instance)
}

func appendInstance(rows []Row, instance core.InstanceInfo) []Row {
	for _, row := range []Row{
		{"Runtime", instance.Runtime},
		{"Hostname", instance.Hostname},
		{"Pod", instance.Pod},
		{"Namespace", instance.Namespace},
		{"Node", instance.Node},
		{"Pod IP", instance.PodIP},
	} {
		if len(row.Value) > 0 {
			rows = append(rows, row)
		}
	}

	return rows
}
