package models

// Ride option catalog. Multipliers are product-defined and shared with the
// fare estimator; "viaje" is the default tier.
var RideOptions = []RideOption{
	{ID: "viaje", Multiplier: 1.0},
	{ID: "confort", Multiplier: 1.5},
	{ID: "moto", Multiplier: 0.8},
	{ID: "entregas", Multiplier: 0.9},
	{ID: "flete", Multiplier: 2.0},
}

// RideOptionByID returns the catalog entry for id, or false.
func RideOptionByID(id string) (RideOption, bool) {
	for _, o := range RideOptions {
		if o.ID == id {
			return o, true
		}
	}
	return RideOption{}, false
}

var Charities = []Charity{
	{ID: "animal_rescue", Name: "Animal Rescue", Description: "Shelter and care for abandoned animals"},
	{ID: "childrens_fund", Name: "Children's Fund", Description: "School supplies and meals for children"},
	{ID: "rainforest_trust", Name: "Rainforest Trust", Description: "Protection of threatened rainforest"},
}

func CharityByID(id string) (Charity, bool) {
	for _, c := range Charities {
		if c.ID == id {
			return c, true
		}
	}
	return Charity{}, false
}
