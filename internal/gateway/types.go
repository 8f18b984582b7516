package gateway

// RawResponse is the subset of the timeline payload the service reads.
// Every field is optional; absent values decode to nil or the zero value.
type RawResponse struct {
	ResolvedAddress   *string            `json:"resolvedAddress,omitempty"`
	Timezone          *string            `json:"timezone,omitempty"`
	CurrentConditions *CurrentConditions `json:"currentConditions,omitempty"`
	Days              []RawDay           `json:"days,omitempty"`
}

type RawDay struct {
	Datetime string    `json:"datetime,omitempty"`
	Hours    []RawHour `json:"hours,omitempty"`
}

// RawHour carries both timestamp spellings and both temperature spellings
// the provider has been seen to emit.
type RawHour struct {
	Datetime      string   `json:"datetime,omitempty"`
	DatetimeEpoch *int64   `json:"datetimeEpoch,omitempty"`
	Temp          *float64 `json:"temp,omitempty"`
	TempC         *float64 `json:"tempC,omitempty"`
	PrecipProb    *float64 `json:"precipprob,omitempty"`
	Conditions    *string  `json:"conditions,omitempty"`
}

type CurrentConditions struct {
	Datetime      *string  `json:"datetime,omitempty"`
	DatetimeEpoch *int64   `json:"datetimeEpoch,omitempty"`
	Temp          *float64 `json:"temp,omitempty"`
	FeelsLike     *float64 `json:"feelslike,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	WindSpeed     *float64 `json:"windspeed,omitempty"`
	PrecipProb    *float64 `json:"precipprob,omitempty"`
	Conditions    *string  `json:"conditions,omitempty"`
	Icon          *string  `json:"icon,omitempty"`
}

// HourRecord is one normalized hour. Datetime is always set.
type HourRecord struct {
	Datetime   string   `json:"datetime"`
	Temp       *float64 `json:"temp,omitempty"`
	PrecipProb *float64 `json:"precipprob,omitempty"`
	Conditions *string  `json:"conditions,omitempty"`
}

// WeatherBundle is the display-ready result of Normalize. Both hour slices
// are ordered earliest-first and hold at most HoursPerSide records.
type WeatherBundle struct {
	ResolvedAddress   *string            `json:"resolvedAddress,omitempty"`
	Timezone          *string            `json:"timezone,omitempty"`
	CurrentConditions *CurrentConditions `json:"currentConditions,omitempty"`
	HoursPrev24       []HourRecord       `json:"hoursPrev24"`
	HoursNext24       []HourRecord       `json:"hoursNext24"`
}

// Address returns the resolved address or "" when the provider sent none.
func (b *WeatherBundle) Address() string {
	if b == nil || b.ResolvedAddress == nil {
		return ""
	}
	return *b.ResolvedAddress
}

// Clone copies the bundle and its hour slices. Pointer fields are shared;
// they are never mutated after Normalize returns.
func (b *WeatherBundle) Clone() *WeatherBundle {
	if b == nil {
		return nil
	}
	out := *b
	out.HoursPrev24 = append([]HourRecord{}, b.HoursPrev24...)
	out.HoursNext24 = append([]HourRecord{}, b.HoursNext24...)
	return &out
}
