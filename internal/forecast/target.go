package forecast

// Target is a resolved device: either a single panel or a cluster with its members.
// Each variant owns its capacity and location resolution.
type Target interface {
	Ref() DeviceRef
	OwnerID() string
	Parameters() (CapacityParameters, error)
	isTarget()
}

// SingleTarget forecasts one panel.
type SingleTarget struct {
	Panel Panel
}

func (t SingleTarget) Ref() DeviceRef  { return DeviceRef{Kind: KindPanel, ID: t.Panel.ID} }
func (t SingleTarget) OwnerID() string { return t.Panel.OwnerID }
func (SingleTarget) isTarget()         {}

func (t SingleTarget) Parameters() (CapacityParameters, error) {
	capacity := PanelCapacityKWp(t.Panel)
	if capacity <= 0 {
		return CapacityParameters{}, invalidCapacity()
	}
	if t.Panel.Location == nil {
		return CapacityParameters{}, NewError(KindMissingLocation, "panel %s has no location", t.Panel.ID)
	}
	return CapacityParameters{
		CapacityKWp: capacity,
		Latitude:    t.Panel.Location.Latitude,
		Longitude:   t.Panel.Location.Longitude,
	}, nil
}

// GroupTarget forecasts a cluster as one co-located site.
type GroupTarget struct {
	Cluster Cluster
	Panels  []Panel
}

func (t GroupTarget) Ref() DeviceRef  { return DeviceRef{Kind: KindCluster, ID: t.Cluster.ID} }
func (t GroupTarget) OwnerID() string { return t.Cluster.OwnerID }
func (GroupTarget) isTarget()         {}

func (t GroupTarget) Parameters() (CapacityParameters, error) {
	capacity, err := ClusterCapacityKWp(t.Panels, t.Cluster.Inverter)
	if err != nil {
		return CapacityParameters{}, err
	}
	loc := t.Site()
	if loc == nil {
		return CapacityParameters{}, NewError(KindMissingLocation, "cluster %s has no located panels", t.Cluster.ID)
	}
	return CapacityParameters{
		CapacityKWp: capacity,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
	}, nil
}

// Site is the location standing in for the whole cluster: the first member
// panel's, falling back to the cluster's own. Members are assumed co-located.
func (t GroupTarget) Site() *Location {
	if len(t.Panels) > 0 && t.Panels[0].Location != nil {
		return t.Panels[0].Location
	}
	return t.Cluster.Location
}
