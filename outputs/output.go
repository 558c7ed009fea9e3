package outputs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sundy-li/offsetmon/outputs/console"
	"github.com/sundy-li/offsetmon/protocol"
)

// Output receives a group's current offsets on every report tick.
// SaveMessage must not block: the reporter feeds every output in turn.
type Output interface {
	SaveMessage(info *protocol.GroupInfo)
	Start() error
	Stop() error
}

func NewOutput(typ string, ctx context.Context, bs []byte) (opt Output, err error) {
	switch typ {
	case "console":
		opt, err = console.New(ctx, bs)
	default:
		err = errors.New("No Match output type:" + typ)
	}
	return
}

// StartAll builds and starts one output per configured type, in type order.
// Outputs already started are stopped again if a later one fails.
func StartAll(ctx context.Context, cfgs map[string]map[string]interface{}) ([]Output, error) {
	types := make([]string, 0, len(cfgs))
	for typ := range cfgs {
		types = append(types, typ)
	}
	sort.Strings(types)

	outs := make([]Output, 0, len(types))
	fail := func(err error) ([]Output, error) {
		for _, o := range outs {
			_ = o.Stop()
		}
		return nil, err
	}
	for _, typ := range types {
		bs, err := json.Marshal(cfgs[typ])
		if err != nil {
			return fail(fmt.Errorf("output %s: %w", typ, err))
		}
		o, err := NewOutput(typ, ctx, bs)
		if err != nil {
			return fail(err)
		}
		if err := o.Start(); err != nil {
			return fail(fmt.Errorf("start output %s: %w", typ, err))
		}
		outs = append(outs, o)
	}
	return outs, nil
}
