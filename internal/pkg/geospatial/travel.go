package geospatial

// Traffic is a coarse road congestion level.
type Traffic string

const (
	TrafficLight  Traffic = "light"
	TrafficNormal Traffic = "normal"
	TrafficHeavy  Traffic = "heavy"
)

// Average urban driving speeds in km/h.
var trafficSpeeds = map[Traffic]float64{
	TrafficHeavy:  18,
	TrafficNormal: 24,
	TrafficLight:  32,
}

// MinTravelMinutes covers pickup and turnaround even for very short trips.
const MinTravelMinutes = 4.0

// TravelMinutes estimates driving time for a road distance. Unknown traffic
// levels use the normal speed.
func TravelMinutes(distanceKm float64, traffic Traffic) float64 {
	speed, ok := trafficSpeeds[traffic]
	if !ok {
		speed = trafficSpeeds[TrafficNormal]
	}
	minutes := distanceKm / speed * 60
	return max(MinTravelMinutes, minutes)
}
