package notice

import (
	"errors"
	"reflect"
	"testing"
)

type fakeResolver struct {
	all    []int64
	groups map[string][]int64
}

func (r *fakeResolver) ListIDs() ([]int64, error) { return r.all, nil }

func (r *fakeResolver) ListIDsByGroup(group string) ([]int64, error) {
	return r.groups[group], nil
}

func TestResolve(t *testing.T) {
	resolver := &fakeResolver{
		all:    []int64{1, 2, 3},
		groups: map[string][]int64{"curators": {2, 3}},
	}

	tests := []struct {
		name    string
		sel     TargetSelector
		want    []int64
		wantErr bool
	}{
		{name: "all", sel: SelectAll(), want: []int64{1, 2, 3}},
		{name: "explicit ids", sel: SelectIDs(5, 7), want: []int64{5, 7}},
		{name: "group", sel: SelectGroup("curators"), want: []int64{2, 3}},
		{name: "unknown group is empty", sel: SelectGroup("ghosts"), want: nil},
		{name: "empty id set", sel: SelectIDs(), wantErr: true},
		{name: "empty group name", sel: TargetSelector{Kind: TargetGroup}, wantErr: true},
		{name: "unknown kind", sel: TargetSelector{Kind: "everyone"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.sel, resolver)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTarget) {
					t.Fatalf("err = %v, want ErrInvalidTarget", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}
