package forecast

// PanelCapacityKWp converts a panel's nameplate rating into effective kWp.
func PanelCapacityKWp(p Panel) float64 {
	return (p.PowerRatingW / 1000.0) * (p.EfficiencyPct / 100.0)
}

// Factor is the multiplicative conversion loss of the inverter.
// A missing inverter or unknown efficiency is lossless.
func (i *Inverter) Factor() float64 {
	if i == nil || i.EfficiencyPct == nil {
		return 1.0
	}
	return *i.EfficiencyPct / 100.0
}

// ClusterCapacityKWp sums member capacities and applies the inverter loss.
func ClusterCapacityKWp(panels []Panel, inv *Inverter) (float64, error) {
	if len(panels) == 0 {
		return 0, NewError(KindInvalidCapacity, "no panels found for the cluster")
	}
	var sum float64
	for _, p := range panels {
		sum += PanelCapacityKWp(p)
	}
	capacity := sum * inv.Factor()
	if capacity <= 0 {
		return 0, invalidCapacity()
	}
	return capacity, nil
}

func invalidCapacity() *Error {
	return NewError(KindInvalidCapacity, "panel or cluster power rating is zero or lower, please change values and try again")
}
