package model

import (
	"edu-checkout/internal/domain"
)

// TargetKind discriminates PurchaseTarget.
type TargetKind string

const (
	TargetCourse   TargetKind = "course"
	TargetWorkshop TargetKind = "workshop"
	TargetBook     TargetKind = "book"
	TargetOther    TargetKind = "other"
)

// PurchaseTarget is what a payment buys: exactly one catalog item, or "other".
type PurchaseTarget struct {
	Kind TargetKind
	ID   string
}

func CourseTarget(id string) PurchaseTarget   { return PurchaseTarget{Kind: TargetCourse, ID: id} }
func WorkshopTarget(id string) PurchaseTarget { return PurchaseTarget{Kind: TargetWorkshop, ID: id} }
func BookTarget(id string) PurchaseTarget     { return PurchaseTarget{Kind: TargetBook, ID: id} }
func OtherTarget() PurchaseTarget             { return PurchaseTarget{Kind: TargetOther} }

func (t PurchaseTarget) Validate() error {
	switch t.Kind {
	case TargetCourse, TargetWorkshop, TargetBook:
		if t.ID == "" {
			return domain.ErrInvalidArgument
		}
		return nil
	case TargetOther:
		if t.ID != "" {
			return domain.ErrInvalidArgument
		}
		return nil
	default:
		return domain.ErrInvalidArgument
	}
}

// GrantsEnrollment reports whether a successful payment yields an entitlement row.
func (t PurchaseTarget) GrantsEnrollment() bool {
	return t.Kind == TargetCourse || t.Kind == TargetWorkshop || t.Kind == TargetBook
}

func (t PurchaseTarget) String() string {
	if t.Kind == TargetOther {
		return string(TargetOther)
	}
	return string(t.Kind) + ":" + t.ID
}

// Columns splits the target into the nullable course/workshop/book columns plus purpose.
func (t PurchaseTarget) Columns() (courseID, workshopID, bookID *string, purpose string) {
	id := t.ID
	switch t.Kind {
	case TargetCourse:
		courseID = &id
	case TargetWorkshop:
		workshopID = &id
	case TargetBook:
		bookID = &id
	}
	return courseID, workshopID, bookID, string(t.Kind)
}

// TargetFromColumns is the inverse of Columns. Rows that violate the
// exactly-one rule are reported as ErrInvalidArgument.
func TargetFromColumns(courseID, workshopID, bookID *string, purpose string) (PurchaseTarget, error) {
	set := 0
	var t PurchaseTarget
	if courseID != nil {
		set++
		t = CourseTarget(*courseID)
	}
	if workshopID != nil {
		set++
		t = WorkshopTarget(*workshopID)
	}
	if bookID != nil {
		set++
		t = BookTarget(*bookID)
	}
	switch {
	case set == 0 && TargetKind(purpose) == TargetOther:
		return OtherTarget(), nil
	case set == 1 && TargetKind(purpose) == t.Kind:
		return t, t.Validate()
	default:
		return PurchaseTarget{}, domain.ErrInvalidArgument
	}
}
