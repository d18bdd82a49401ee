package remote

// Camera is one remote camera record. Source is the opaque identifier handed
// to the streaming gateway; a camera without a source cannot be rendered.
type Camera struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Source   string `json:"source"`
}

// Slide is an ordered list of camera ids shown together on one page.
type Slide struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CameraIDs []string `json:"cameraIds"`
}

// Profile groups slides under a name. AllowLive selects the tile transport
// for every slide in the profile: true means snapshot tiles with an
// on-demand expanded live view, false means inline continuous video on
// every tile.
type Profile struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slides    []Slide `json:"slides"`
	AllowLive bool    `json:"allowLive"`
}

// User is an admin-managed login record.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// StateSnapshot is one immutable read of the remote authoritative state.
// It is replaced wholesale by the next successful fetch; consumers must not
// mutate it.
type StateSnapshot struct {
	ActiveProfileID string    `json:"activeProfileId"`
	MaxCamsPerSlide int       `json:"maxCamsPerSlide"`
	Profiles        []Profile `json:"profiles"`
	Cameras         []Camera  `json:"cameras"`
}

// ProfileByID returns the profile with the given id, or nil.
func (s *StateSnapshot) ProfileByID(id string) *Profile {
	if s == nil {
		return nil
	}
	for i := range s.Profiles {
		if s.Profiles[i].ID == id {
			return &s.Profiles[i]
		}
	}
	return nil
}

// CameraByID returns the camera with the given id, or nil.
func (s *StateSnapshot) CameraByID(id string) *Camera {
	if s == nil {
		return nil
	}
	for i := range s.Cameras {
		if s.Cameras[i].ID == id {
			return &s.Cameras[i]
		}
	}
	return nil
}

// LoginResult is the payload returned by a successful login exchange.
type LoginResult struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ProfileID string `json:"profileId,omitempty"`
}
