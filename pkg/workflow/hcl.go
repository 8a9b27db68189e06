package workflow

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclDocument is the root of an HCL workflow file:
//
//	name = "greeting"
//
//	node "v1" {
//	  type = "variable"
//	  y    = 0
//	  properties = { name = "greeting", value = "hello" }
//	}
//
//	connection {
//	  from = "v1"
//	  to   = "p1"
//	}
type hclDocument struct {
	Name        *string          `hcl:"name,optional"`
	Description *string          `hcl:"description,optional"`
	Version     *string          `hcl:"version,optional"`
	Author      *string          `hcl:"author,optional"`
	Nodes       []*hclNode       `hcl:"node,block"`
	Connections []*hclConnection `hcl:"connection,block"`
	Remain      hcl.Body         `hcl:",remain"`
}

type hclNode struct {
	ID         string         `hcl:"id,label"`
	Type       string         `hcl:"type"`
	Parent     *string        `hcl:"parent,optional"`
	X          *float64       `hcl:"x,optional"`
	Y          *float64       `hcl:"y,optional"`
	Properties hcl.Expression `hcl:"properties,optional"`
}

type hclConnection struct {
	ID     *string `hcl:"id,optional"`
	From   string  `hcl:"from"`
	Output *string `hcl:"output,optional"`
	To     string  `hcl:"to"`
	Input  *string `hcl:"input,optional"`
}

// DecodeHCL parses an HCL workflow document. filename is only used in
// diagnostics.
func DecodeHCL(src []byte, filename string) (*Document, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	var root hclDocument
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	doc := &Document{}
	if root.Name != nil || root.Description != nil || root.Version != nil || root.Author != nil {
		doc.Metadata = &Metadata{
			Name:        deref(root.Name),
			Description: deref(root.Description),
			Version:     deref(root.Version),
			Author:      deref(root.Author),
		}
	}
	for _, hn := range root.Nodes {
		n := &Node{ID: hn.ID, Type: NodeType(hn.Type), ParentID: deref(hn.Parent)}
		if hn.X != nil {
			n.Position.X = *hn.X
		}
		if hn.Y != nil {
			n.Position.Y = *hn.Y
		}
		props, err := decodeProperties(hn.Properties)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", hn.ID, err)
		}
		n.Properties = props
		doc.Nodes = append(doc.Nodes, n)
	}
	for _, hc := range root.Connections {
		doc.Connections = append(doc.Connections, &Connection{
			ID:           deref(hc.ID),
			SourceNode:   hc.From,
			SourceOutput: deref(hc.Output),
			TargetNode:   hc.To,
			TargetInput:  deref(hc.Input),
		})
	}
	return doc, nil
}

func decodeProperties(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("properties: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("properties must be an object, got %s", val.Type().FriendlyName())
	}
	native, err := ctyToNative(val)
	if err != nil {
		return nil, fmt.Errorf("properties: %w", err)
	}
	m, _ := native.(map[string]any)
	return m, nil
}

// ctyToNative converts a cty value into plain Go values: strings, float64,
// bool, []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			nv, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, nv)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			nv, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = nv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}

// nativeToCty is the inverse of ctyToNative. Values it does not recognise are
// written as their display string.
func nativeToCty(v any) cty.Value {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case string:
		return cty.StringVal(t)
	case bool:
		return cty.BoolVal(t)
	case float64:
		return cty.NumberFloatVal(t)
	case int:
		return cty.NumberIntVal(int64(t))
	case int64:
		return cty.NumberIntVal(t)
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			elems[i] = nativeToCty(e)
		}
		return cty.TupleVal(elems)
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, e := range t {
			attrs[k] = nativeToCty(e)
		}
		return cty.ObjectVal(attrs)
	}
	return cty.StringVal(Stringify(v))
}

// EncodeHCL writes doc in the layout DecodeHCL reads.
func EncodeHCL(doc *Document) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	if m := doc.Metadata; m != nil {
		for _, kv := range [][2]string{{"name", m.Name}, {"description", m.Description}, {"version", m.Version}, {"author", m.Author}} {
			if kv[1] != "" {
				body.SetAttributeValue(kv[0], cty.StringVal(kv[1]))
			}
		}
		body.AppendNewline()
	}
	for _, n := range doc.Nodes {
		if n == nil {
			continue
		}
		nb := body.AppendNewBlock("node", []string{n.ID}).Body()
		nb.SetAttributeValue("type", cty.StringVal(string(n.Type)))
		if n.ParentID != "" {
			nb.SetAttributeValue("parent", cty.StringVal(n.ParentID))
		}
		nb.SetAttributeValue("x", cty.NumberFloatVal(n.Position.X))
		nb.SetAttributeValue("y", cty.NumberFloatVal(n.Position.Y))
		if len(n.Properties) > 0 {
			nb.SetAttributeValue("properties", nativeToCty(n.Properties))
		}
		body.AppendNewline()
	}
	for _, c := range doc.Connections {
		if c == nil {
			continue
		}
		cb := body.AppendNewBlock("connection", nil).Body()
		if c.ID != "" {
			cb.SetAttributeValue("id", cty.StringVal(c.ID))
		}
		cb.SetAttributeValue("from", cty.StringVal(c.SourceNode))
		cb.SetAttributeValue("output", cty.StringVal(c.Output()))
		cb.SetAttributeValue("to", cty.StringVal(c.TargetNode))
		cb.SetAttributeValue("input", cty.StringVal(c.Input()))
		body.AppendNewline()
	}
	return hclwrite.Format(f.Bytes())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
