package model

import "testing"

func TestVehicle_Describe(t *testing.T) {
	t.Parallel()

	v := Vehicle{Year: 2019, Make: "Honda", Model: "Civic"}
	if got := v.Describe(); got != "2019 Honda Civic" {
		t.Fatalf("unexpected description %q", got)
	}
}
