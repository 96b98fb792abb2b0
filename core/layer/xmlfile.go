package layer

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// segmentExpr selects the annotations of a stand-off XML layer:
//
//	<layer id="display">
//	  <segment start="0" end="10">
//	    <data key="root_idx_mapping">1</data>
//	    <text>...</text>
//	  </segment>
//	</layer>
var segmentExpr = xpath.MustCompile("/layer/segment")

// XMLFile reads a stand-off XML layer from disk.
type XMLFile struct {
	Path string
}

// Records parses the file on every call.
func (f XMLFile) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "layer file", ID: f.Path, Err: err}
		}
		return nil, errors.NewIO("read", f.Path, err)
	}
	return decodeXML(f.Path, data)
}

func decodeXML(path string, data []byte) ([]Record, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		perr := errors.NewParse("XML", path, err.Error())
		perr.Err = err
		return nil, perr
	}

	nodes := xmlquery.QuerySelectorAll(doc, segmentExpr)
	records := make([]Record, 0, len(nodes))
	for i, node := range nodes {
		start, err := intAttr(node, "start")
		if err != nil {
			return nil, errors.NewParse("XML", path, "segment "+strconv.Itoa(i)+": "+err.Error())
		}
		end, err := intAttr(node, "end")
		if err != nil {
			return nil, errors.NewParse("XML", path, "segment "+strconv.Itoa(i)+": "+err.Error())
		}

		rec := Record{Start: start, End: end}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != xmlquery.ElementNode {
				continue
			}
			switch child.Data {
			case "text":
				rec.Text = child.InnerText()
			case "data":
				key := child.SelectAttr("key")
				if key == "" {
					return nil, errors.NewParse("XML", path, "segment "+strconv.Itoa(i)+": data element without key")
				}
				if rec.Metadata == nil {
					rec.Metadata = make(map[string]string)
				}
				rec.Metadata[key] = strings.TrimSpace(child.InnerText())
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func intAttr(node *xmlquery.Node, name string) (int, error) {
	raw := node.SelectAttr(name)
	if raw == "" {
		return 0, errors.NewValidation(name, "missing attribute")
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.NewValidation(name, "attribute "+strconv.Quote(raw)+" is not an integer")
	}
	return v, nil
}
