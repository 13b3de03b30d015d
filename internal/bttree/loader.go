package bttree

import (
	"fmt"

	"github.com/andreyvit/tinyjson"

	"github.com/FEASTorg/anolis-sub001/internal/statuscode"
	"github.com/FEASTorg/anolis-sub001/internal/wire"
)

// LoadTree parses a tree description into an executable root Node.
// Decoding goes through tinyjson.Raw, parsing once into map[string]any
// and walking it by hand rather than through encoding/json struct tags:
// trees are heterogeneous by node type, so a static struct shape doesn't
// fit as naturally as it does for the wire protocol payloads.
func LoadTree(raw []byte) (Node, error) {
	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return nil, statuscode.New(statuscode.InvalidArgument, "bttree.LoadTree", "tree root must be a JSON object")
	}
	return buildNode(m)
}

func buildNode(m map[string]any) (Node, error) {
	typ, _ := m["type"].(string)
	switch typ {
	case "sequence":
		children, err := buildChildren(m)
		if err != nil {
			return nil, err
		}
		return &Sequence{Children: children}, nil
	case "selector":
		children, err := buildChildren(m)
		if err != nil {
			return nil, err
		}
		return &Selector{Children: children}, nil
	case "invert":
		child, err := buildSingleChild(m)
		if err != nil {
			return nil, err
		}
		return &Invert{Child: child}, nil
	case "repeat":
		child, err := buildSingleChild(m)
		if err != nil {
			return nil, err
		}
		return &Repeat{Child: child}, nil
	case "read_signal":
		return &ReadSignal{
			Handle:   str(m, "handle"),
			SignalID: str(m, "signal_id"),
			OutPort:  str(m, "out_port"),
		}, nil
	case "check_quality":
		return &CheckQuality{
			Handle:   str(m, "handle"),
			SignalID: str(m, "signal_id"),
			Want:     wire.SignalQuality(str(m, "want_quality")),
		}, nil
	case "call_device":
		return &CallDevice{
			Handle:       str(m, "handle"),
			FunctionName: str(m, "function_name"),
			Args:         str(m, "args"),
			OutPort:      str(m, "out_port"),
		}, nil
	case "get_parameter":
		return &GetParameter{
			Name:    str(m, "name"),
			OutPort: str(m, "out_port"),
		}, nil
	default:
		return nil, statuscode.New(statuscode.InvalidArgument, "bttree.buildNode", "unknown node type: "+typ)
	}
}

func buildChildren(m map[string]any) ([]Node, error) {
	raw, _ := m["children"].([]any)
	out := make([]Node, 0, len(raw))
	for i, c := range raw {
		cm, ok := c.(map[string]any)
		if !ok {
			return nil, statuscode.New(statuscode.InvalidArgument, "bttree.buildChildren", fmt.Sprintf("child %d is not an object", i))
		}
		node, err := buildNode(cm)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func buildSingleChild(m map[string]any) (Node, error) {
	cm, ok := m["child"].(map[string]any)
	if !ok {
		return nil, statuscode.New(statuscode.InvalidArgument, "bttree.buildSingleChild", "decorator node requires a \"child\" object")
	}
	return buildNode(cm)
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
