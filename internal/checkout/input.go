package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bonafide55/shop-api/internal/order"
)

// Line names a cart product to order. Quantities come from the cart row.
type Line struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// Input is the order form.
type Input struct {
	LastName          string `json:"last_name" validate:"required,max=100"`
	FirstName         string `json:"first_name" validate:"required,max=100"`
	Patronymic        string `json:"patronymic" validate:"max=100"`
	Phone             string `json:"phone" validate:"required,max=20"`
	DeliveryMethod    string `json:"delivery_method" validate:"required,oneof='Почта России' СДЭК"`
	City              string `json:"city" validate:"max=100"`
	District          string `json:"district" validate:"max=150"`
	Street            string `json:"street" validate:"max=255"`
	House             string `json:"house" validate:"max=20"`
	Apartment         string `json:"apartment" validate:"max=20"`
	Postcode          string `json:"postcode" validate:"omitempty,numeric,len=6"`
	CDEKOfficeAddress string `json:"cdek_office_address" validate:"max=255"`
	Items             []Line `json:"items" validate:"required,min=1,dive"`
}

// Customer returns the contact block stored on the order.
func (in Input) Customer() order.Customer {
	return order.Customer{
		LastName:          in.LastName,
		FirstName:         in.FirstName,
		Patronymic:        in.Patronymic,
		Phone:             in.Phone,
		DeliveryMethod:    in.DeliveryMethod,
		City:              in.City,
		District:          in.District,
		Street:            in.Street,
		House:             in.House,
		Apartment:         in.Apartment,
		Postcode:          in.Postcode,
		CDEKOfficeAddress: in.CDEKOfficeAddress,
	}
}

// ProductIDs returns the selected product ids without duplicates, in request order.
func (in Input) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(in.Items))
	ids := make([]int64, 0, len(in.Items))
	for _, l := range in.Items {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func (in *Input) trim() {
	for _, f := range []*string{
		&in.LastName, &in.FirstName, &in.Patronymic, &in.Phone, &in.DeliveryMethod,
		&in.City, &in.District, &in.Street, &in.House, &in.Apartment, &in.Postcode,
		&in.CDEKOfficeAddress,
	} {
		*f = strings.TrimSpace(*f)
	}
}

// NewValidator returns a validator that reports fields by their JSON names
// and knows the delivery address rules.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(deliveryRules, Input{})
	return v
}

// A CDEK order needs a pickup office; a post order needs a city.
func deliveryRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(Input)
	switch in.DeliveryMethod {
	case order.DeliveryCDEK:
		if in.CDEKOfficeAddress == "" {
			sl.ReportError(in.CDEKOfficeAddress, "cdek_office_address", "CDEKOfficeAddress", "required_for_cdek", "")
		}
	case order.DeliveryPost:
		if in.City == "" {
			sl.ReportError(in.City, "city", "City", "required_for_post", "")
		}
	}
}

// fieldErrors flattens validation errors into field -> failed rule.
func fieldErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out[field] = fe.Tag()
	}
	return out
}
