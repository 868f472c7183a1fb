package model_test

import (
	"errors"
	"testing"

	"github.com/iklobato/lightapi/domain/model"
	"github.com/iklobato/lightapi/domain/rest"
)

func personDescriptor() *model.Descriptor {
	return &model.Descriptor{
		Name: "person",
		Fields: []model.Field{
			{Name: "pk", Type: model.Integer},
			{Name: "name", Type: model.Text},
			{Name: "email", Type: model.Text, Unique: true},
			{Name: "email_verified", Type: model.Boolean, Default: false, HasDefault: true},
		},
		PrimaryKey: "pk",
	}
}

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *model.Descriptor)
		wantErr bool
	}{
		{"valid", func(d *model.Descriptor) {}, false},
		{"no name", func(d *model.Descriptor) { d.Name = "" }, true},
		{"no fields", func(d *model.Descriptor) { d.Fields = nil }, true},
		{"duplicate field", func(d *model.Descriptor) {
			d.Fields = append(d.Fields, model.Field{Name: "name", Type: model.Text})
		}, true},
		{"missing primary key", func(d *model.Descriptor) { d.PrimaryKey = "nope" }, true},
		{"empty primary key", func(d *model.Descriptor) { d.PrimaryKey = "" }, true},
		{"unknown type", func(d *model.Descriptor) { d.Fields[1].Type = "varchar" }, true},
		{"default of wrong type", func(d *model.Descriptor) {
			d.Fields[3].Default = "yes"
		}, true},
		{"integer default as untyped int", func(d *model.Descriptor) {
			d.Fields = append(d.Fields, model.Field{
				Name: "count", Type: model.Integer, Default: 0, HasDefault: true,
			})
		}, true},
		{"nil default on non-nullable", func(d *model.Descriptor) {
			d.Fields[1].Default = nil
			d.Fields[1].HasDefault = true
		}, true},
		{"nil default on nullable", func(d *model.Descriptor) {
			d.Fields[1].Nullable = true
			d.Fields[1].Default = nil
			d.Fields[1].HasDefault = true
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := personDescriptor()
			tt.mutate(d)
			err := d.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cerr *rest.ConfigurationError
				if !errors.As(err, &cerr) {
					t.Errorf("error type = %T, want ConfigurationError", err)
				}
			}
		})
	}
}

func TestDescriptor_PathSegment(t *testing.T) {
	d := &model.Descriptor{Name: "Person"}
	if got := d.PathSegment(); got != "/person" {
		t.Errorf("PathSegment() = %q, want /person", got)
	}
}

func TestDescriptor_ParseKey(t *testing.T) {
	d := personDescriptor()

	key, err := d.ParseKey("42")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if key != int64(42) {
		t.Errorf("key = %v (%T), want int64 42", key, key)
	}

	if _, err := d.ParseKey("abc"); err == nil {
		t.Error("ParseKey(abc) should fail for integer key")
	}
	if _, err := d.ParseKey("1abc"); err == nil {
		t.Error("ParseKey(1abc) should fail for integer key")
	}

	text := &model.Descriptor{
		Name:       "doc",
		Fields:     []model.Field{{Name: "id", Type: model.Text}},
		PrimaryKey: "id",
	}
	key, err = text.ParseKey("abc-123")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if key != "abc-123" {
		t.Errorf("key = %v, want abc-123", key)
	}
}

func TestCheckCreate_AppliesDefaults(t *testing.T) {
	d := personDescriptor()

	rec, err := d.CheckCreate(model.Record{
		"name":  "John Doe",
		"email": "john@example.com",
	})
	if err != nil {
		t.Fatalf("CheckCreate: %v", err)
	}
	if rec["email_verified"] != false {
		t.Errorf("email_verified = %v, want default false", rec["email_verified"])
	}
	if rec["name"] != "John Doe" {
		t.Errorf("name = %v", rec["name"])
	}
	if _, ok := rec["pk"]; ok {
		t.Error("primary key must not appear in the checked record")
	}
}

func TestCheckCreate_MissingRequired(t *testing.T) {
	d := personDescriptor()
	_, err := d.CheckCreate(model.Record{"name": "John"})
	var verr *rest.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Field != "email" {
		t.Errorf("field = %q, want email", verr.Field)
	}
}

func TestCheckCreate_RejectsUnknownAndKey(t *testing.T) {
	d := personDescriptor()
	if _, err := d.CheckCreate(model.Record{"name": "x", "email": "y", "age": 3}); err == nil {
		t.Error("unknown field should be rejected")
	}
	if _, err := d.CheckCreate(model.Record{"name": "x", "email": "y", "pk": 7}); err == nil {
		t.Error("primary key in body should be rejected")
	}
}

func TestCheckCreate_TypeCoercion(t *testing.T) {
	d := &model.Descriptor{
		Name: "m",
		Fields: []model.Field{
			{Name: "id", Type: model.Integer},
			{Name: "count", Type: model.Integer},
			{Name: "ratio", Type: model.Float},
			{Name: "note", Type: model.Text, Nullable: true},
		},
		PrimaryKey: "id",
	}

	// JSON numbers arrive as float64.
	rec, err := d.CheckCreate(model.Record{"count": float64(7), "ratio": 1.5})
	if err != nil {
		t.Fatalf("CheckCreate: %v", err)
	}
	if rec["count"] != int64(7) {
		t.Errorf("count = %v (%T), want int64 7", rec["count"], rec["count"])
	}
	if rec["note"] != nil {
		t.Errorf("nullable absent field = %v, want nil", rec["note"])
	}

	if _, err := d.CheckCreate(model.Record{"count": 1.5, "ratio": 1.0}); err == nil {
		t.Error("fractional value for integer field should be rejected")
	}
	if _, err := d.CheckCreate(model.Record{"count": float64(1), "ratio": "x"}); err == nil {
		t.Error("string for float field should be rejected")
	}
}

func TestCheckReplace_DefaultableOptional(t *testing.T) {
	// Pins the PUT contract: omitting a defaultable field resets it to its
	// default rather than failing.
	d := personDescriptor()
	rec, err := d.CheckReplace(model.Record{
		"name":  "Jane Doe",
		"email": "jane@example.com",
	})
	if err != nil {
		t.Fatalf("CheckReplace: %v", err)
	}
	if rec["email_verified"] != false {
		t.Errorf("email_verified = %v, want reset to default", rec["email_verified"])
	}
}

func TestCheckMerge(t *testing.T) {
	d := personDescriptor()

	rec, err := d.CheckMerge(model.Record{"email_verified": true})
	if err != nil {
		t.Fatalf("CheckMerge: %v", err)
	}
	if len(rec) != 1 || rec["email_verified"] != true {
		t.Errorf("rec = %v", rec)
	}

	if _, err := d.CheckMerge(model.Record{"bogus": 1}); err == nil {
		t.Error("unknown field should be rejected")
	}
	if _, err := d.CheckMerge(model.Record{"name": nil}); err == nil {
		t.Error("null for non-nullable field should be rejected")
	}
}
