package parse

import "encoding/json"

// SoftString decodes a JSON string and treats any other shape, including
// null, as absent rather than invalid. The portal reuses some field names
// for both display strings and numeric ids.
type SoftString struct {
	Value string
	Ok    bool
}

func (s *SoftString) UnmarshalJSON(data []byte) error {
	// unmarshalling null into a string is a no-op, not an error; catch it
	// up front so explicit nulls read as absent
	if string(data) == "null" {
		s.Ok = false
		return nil
	}
	var raw string
	err := json.Unmarshal(data, &raw)
	if err != nil {
		s.Ok = false
		return nil
	}
	s.Value = raw
	s.Ok = true
	return nil
}

func (s SoftString) MarshalJSON() ([]byte, error) {
	if !s.Ok {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

type EventLocation struct {
	LocationId   int64  `json:"locationId"`
	LocationName string `json:"locationName"`
}

// EventManager is one staff member attached to an event.
type EventManager struct {
	ManagerUserId    int64      `json:"managerUserId"`
	ManagerImportId  SoftString `json:"managerImportIdentifier"`
	CoveringUserId   *int64     `json:"coveringUserId"`
	CoveringImportId SoftString `json:"coveringImportIdentifier"`
}

// Event is the typed view of one raw calendar item.
type Event struct {
	ActivityId    int64           `json:"activityId"`
	Title         string          `json:"title"`
	LongTitle     SoftString      `json:"longTitle"`
	Description   string          `json:"description"`
	Start         Instant         `json:"start"`
	Finish        Instant         `json:"finish"`
	Guid          string          `json:"guid"`
	InstanceId    SoftString      `json:"instanceId"`
	AllDay        bool            `json:"allDay"`
	RunningStatus int64           `json:"runningStatus"`
	Location      SoftString      `json:"location"`
	Locations     []EventLocation `json:"locations"`
	Managers      []EventManager  `json:"managers"`
	TargetStudent SoftString      `json:"targetStudentId"`
}

func (Event) Required() []string {
	return []string{"activityId", "title", "start", "finish", "guid", "runningStatus", "description", "allDay"}
}

func (e Event) Validate() []FieldError {
	var errs []FieldError
	if e.Finish.Before(e.Start.Time) {
		errs = append(errs, FieldError{Field: "finish", Reason: "finish precedes start"})
	}
	return errs
}

// User is the typed view of the user details blob. Only the identity
// subset the pipeline needs is projected.
type User struct {
	UserId      int64      `json:"userId"`
	FullName    SoftString `json:"userFullName"`
	DisplayCode SoftString `json:"userDisplayCode"`
	Email       SoftString `json:"userEmail"`
	SchoolId    SoftString `json:"userSchoolId"`
	CampusId    *int64     `json:"userCampusId"`
	YearLevel   SoftString `json:"userYearLevel"`
	FormGroup   SoftString `json:"userFormGroup"`
	PhotoPath   SoftString `json:"userPhotoPath"`
}

func (User) Required() []string {
	return []string{"userId"}
}
