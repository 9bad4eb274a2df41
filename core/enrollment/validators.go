package enrollment

import (
	"github.com/go-playground/validator/v10"

	"github.com/chibale/darasa/core"
)

var (
	enrollmentTypeTag  = "enrollmenttype"
	enrollmentTypeText = "enrollment type must be one of: notes, live_sessions, both"

	itemTypeTag  = "itemtype"
	itemTypeText = "item type must be one of: lesson, assignment"
)

func init() {
	_ = core.Validate.RegisterValidation(enrollmentTypeTag, enrollmentTypeValidation)
	core.RegisterCustomTranslation(enrollmentTypeTag, enrollmentTypeText)

	_ = core.Validate.RegisterValidation(itemTypeTag, itemTypeValidation)
	core.RegisterCustomTranslation(itemTypeTag, itemTypeText)
}

func enrollmentTypeValidation(fl validator.FieldLevel) bool {
	return ValidType(fl.Field().String())
}

func itemTypeValidation(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case ItemLesson, ItemAssignment:
		return true
	}
	return false
}
