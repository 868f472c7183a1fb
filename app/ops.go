package app

import (
	"context"
	"encoding/json"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
	"github.com/iklobato/lightapi/ports"
)

// The seven generated operations. Each is a pure mapping from (request,
// descriptor, storage) to a result; none of them produce HTTP semantics
// beyond the success status. Typed failures bubble up to the dispatcher,
// which owns the translation to error codes.

func opCreate(ctx context.Context, req rest.Request, d *model.Descriptor, st ports.Storage) (rest.Result, error) {
	body, err := decodeBody(req.Body, false)
	if err != nil {
		return rest.Result{}, err
	}
	fields, err := d.CheckCreate(body)
	if err != nil {
		return rest.Result{}, err
	}
	rec, err := st.Insert(ctx, d, fields)
	if err != nil {
		return rest.Result{}, err
	}
	return rest.Result{Status: 201, Body: rec}, nil
}

func opRetrieveAll(ctx context.Context, _ rest.Request, d *model.Descriptor, st ports.Storage) (rest.Result, error) {
	recs, err := st.List(ctx, d)
	if err != nil {
		return rest.Result{}, err
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return rest.Result{Status: 200, Body: recs}, nil
}

func opRead(ctx context.Context, req rest.Request, d *model.Descriptor, st ports.Storage) (rest.Result, error) {
	key, err := d.ParseKey(req.Key)
	if err != nil {
		return rest.Result{}, err
	}
	rec, err := st.Get(ctx, d, key)
	if err != nil {
		return rest.Result{}, err
	}
	return rest.Result{Status: 200, Body: rec}, nil
}

func opUpdate(ctx context.Context, req rest.Request, d *model.Descriptor, st ports.Storage) (rest.Result, error) {
	key, err := d.ParseKey(req.Key)
	if err != nil {
		return rest.Result{}, err
	}
	body, err := decodeBody(req.Body, false)
	if err != nil {
		return rest.Result{}, err
	}
	fields, err := d.CheckReplace(body)
	if err != nil {
		return rest.Result{}, err
	}
	rec, err := st.Replace(ctx, d, key, fields)
	if err != nil {
		return rest.Result{}, err
	}
	return rest.Result{Status: 200, Body: rec}, nil
}

func opPatch(ctx context.Context, req rest.Request, d *model.Descriptor, st ports.Storage) (rest.Result, error) {
	key, err := d.ParseKey(req.Key)
	if err != nil {
		return rest.Result{}, err
	}
	body, err := decodeBody(req.Body, true)
	if err != nil {
		return rest.Result{}, err
	}
	partial, err := d.CheckMerge(body)
	if err != nil {
		return rest.Result{}, err
	}
	rec, err := st.Merge(ctx, d, key, partial)
	if err != nil {
		return rest.Result{}, err
	}
	return rest.Result{Status: 200, Body: rec}, nil
}

func opDelete(ctx context.Context, req rest.Request, d *model.Descriptor, st ports.Storage) (rest.Result, error) {
	key, err := d.ParseKey(req.Key)
	if err != nil {
		return rest.Result{}, err
	}
	existed, err := st.Delete(ctx, d, key)
	if err != nil {
		return rest.Result{}, err
	}
	if !existed {
		return rest.Result{}, rest.ErrNotFound
	}
	return rest.Result{Status: 204}, nil
}

// opOptions answers with the route's allowed-method set and an empty body.
func opOptions(entry *RouteEntry) rest.Result {
	var res rest.Result
	res.Status = 200
	res.Headers.Set("Allow", entry.AllowHeader())
	return res
}

// decodeBody parses a field-keyed JSON object. allowEmpty permits an absent
// body (PATCH with no changes); anything else malformed is a validation error.
func decodeBody(raw []byte, allowEmpty bool) (model.Record, error) {
	if len(raw) == 0 {
		if allowEmpty {
			return model.Record{}, nil
		}
		return nil, rest.Validationf("", "request body required")
	}
	var body model.Record
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, rest.Validationf("", "malformed body: %v", err)
	}
	if body == nil {
		return nil, rest.Validationf("", "request body must be an object")
	}
	return body, nil
}
