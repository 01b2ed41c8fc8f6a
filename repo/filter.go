package repo

import (
	"fmt"

	"mailflow/pkg/goutil"
)

type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
)

type Op string

const (
	OpEq    Op = "="
	OpNotEq Op = "!="
	OpGt    Op = ">"
	OpGte   Op = ">="
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpLike  Op = "LIKE"
	OpIn    Op = "IN"
)

type Condition struct {
	Field         string
	Op            Op
	Value         interface{}
	NextLogicalOp LogicalOp
}

type Pagination struct {
	Limit   *uint32
	Page    *uint32
	HasNext *bool
	Total   *uint32
}

func (p *Pagination) GetLimit() uint32 {
	if p != nil && p.Limit != nil {
		return *p.Limit
	}
	return 0
}

func (p *Pagination) GetPage() uint32 {
	if p != nil && p.Page != nil {
		return *p.Page
	}
	return 0
}

func (p *Pagination) GetHasNext() bool {
	if p != nil && p.HasNext != nil {
		return *p.HasNext
	}
	return false
}

func (p *Pagination) GetTotal() uint32 {
	if p != nil && p.Total != nil {
		return *p.Total
	}
	return 0
}

type Filter struct {
	Conditions []*Condition
	Pagination *Pagination
}

func (f *Filter) GetPagination() *Pagination {
	if f != nil {
		return f.Pagination
	}
	return nil
}

func ToSqlWithArgs(f *Filter) (sql string, args []interface{}) {
	if f == nil {
		return
	}

	conditions := f.Conditions
	for i, condition := range conditions {
		if goutil.IsNil(condition.Value) {
			continue
		}

		switch condition.Op {
		case OpEq:
			sql += fmt.Sprintf("%s = ?", condition.Field)
			args = append(args, condition.Value)
		case OpNotEq:
			sql += fmt.Sprintf("%s != ?", condition.Field)
			args = append(args, condition.Value)
		case OpGt:
			sql += fmt.Sprintf("%s > ?", condition.Field)
			args = append(args, condition.Value)
		case OpGte:
			sql += fmt.Sprintf("%s >= ?", condition.Field)
			args = append(args, condition.Value)
		case OpLt:
			sql += fmt.Sprintf("%s < ?", condition.Field)
			args = append(args, condition.Value)
		case OpLte:
			sql += fmt.Sprintf("%s <= ?", condition.Field)
			args = append(args, condition.Value)
		case OpLike:
			sql += fmt.Sprintf("%s LIKE ?", condition.Field)
			args = append(args, condition.Value)
		case OpIn:
			sql += fmt.Sprintf("%s IN ?", condition.Field)
			args = append(args, condition.Value)
		}

		if len(conditions) > 1 && i != len(conditions)-1 {
			sql += fmt.Sprintf(" %s ", condition.NextLogicalOp)
		}
	}

	return
}
