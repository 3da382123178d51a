package model

import (
	"fmt"
	"time"
)

type Contact struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	PhoneNumber string  `json:"phoneNumber"`
	Email       *string `json:"email,omitempty"`
}

type Vehicle struct {
	ID    int64   `json:"id"`
	VIN   string  `json:"vin"`
	Make  string  `json:"make"`
	Model string  `json:"model"`
	Year  int     `json:"year"`
	Trim  *string `json:"trim,omitempty"`
	Plate *string `json:"plate,omitempty"`
}

// VINSuffix returns the last six characters of the VIN, the form shown to owners.
func (v Vehicle) VINSuffix() string {
	if len(v.VIN) <= 6 {
		return v.VIN
	}
	return v.VIN[len(v.VIN)-6:]
}

func (v Vehicle) Describe() string {
	return fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model)
}

type ServiceRecord struct {
	ID                    int64     `json:"id"`
	VehicleID             int64     `json:"vehicleId"`
	ServiceDate           time.Time `json:"serviceDate"`
	OilType               string    `json:"oilType"`
	OilViscosity          string    `json:"oilViscosity"`
	MileageAtService      int       `json:"mileageAtService"`
	NextServiceMileageDue int       `json:"nextServiceMileageDue"`
	NextServiceDateDue    time.Time `json:"nextServiceDateDue"`
	Notes                 *string   `json:"notes,omitempty"`
}
