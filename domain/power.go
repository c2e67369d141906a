package domain

// Power is a signed instantaneous power in watts. Positive values follow
// the convention of "energy flowing into the observed node"
// (import, charge); negative is export/discharge unless stated otherwise
// by the call site.
type Power struct {
	Watts float64
}

// ForDuration integrates constant power over a duration, returning
// watt-hours.
func (p Power) ForDuration(d Duration) Energy {
	return Energy{Wh: p.Watts * d.Hours()}
}

// Energy is a signed quantity of watt-hours.
type Energy struct {
	Wh float64
}

// Kwh returns the energy in kilowatt-hours.
func (e Energy) Kwh() float64 {
	return e.Wh / 1000.0
}

// NewEnergyFromKwh builds an Energy from kilowatt-hours.
func NewEnergyFromKwh(kwh float64) Energy {
	return Energy{Wh: kwh * 1000.0}
}

// Per returns the average power that would deliver this energy over d.
func (e Energy) Per(d Duration) Power {
	if d.Hours() == 0 {
		return Power{}
	}
	return Power{Watts: e.Wh / d.Hours()}
}

func (e Energy) Add(other Energy) Energy {
	return Energy{Wh: e.Wh + other.Wh}
}

func (e Energy) Negate() Energy {
	return Energy{Wh: -e.Wh}
}
