package models

import (
	"fmt"
	"time"
)

// RoomSite identifies the campus a room belongs to.
type RoomSite string

const (
	RoomSiteMain  RoomSite = "MAIN"
	RoomSiteNorth RoomSite = "NORTH"
)

// RoomBuilding identifies the building within a site.
type RoomBuilding string

const (
	RoomBuildingNew RoomBuilding = "NEW"
	RoomBuildingOld RoomBuilding = "OLD"
)

// DefaultRoomCapacity applies when a room is created without a capacity.
const DefaultRoomCapacity = 15

var (
	siteLabels     = map[RoomSite]string{RoomSiteMain: "Main Campus", RoomSiteNorth: "North Campus"}
	buildingLabels = map[RoomBuilding]string{RoomBuildingNew: "New Building", RoomBuildingOld: "Old Building"}
)

// Room is a physical teaching space with a fixed capacity.
type Room struct {
	ID        string       `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Site      RoomSite     `db:"site" json:"site"`
	Building  RoomBuilding `db:"building" json:"building"`
	Floor     int          `db:"floor" json:"floor"`
	Capacity  int          `db:"capacity" json:"capacity"`
	Active    bool         `db:"active" json:"active"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// FullLocation renders "Main Campus - New Building - Floor 2".
func (r Room) FullLocation() string {
	site := siteLabels[r.Site]
	if site == "" {
		site = string(r.Site)
	}
	building := buildingLabels[r.Building]
	if building == "" {
		building = string(r.Building)
	}
	return fmt.Sprintf("%s - %s - Floor %d", site, building, r.Floor)
}

// RoomView is the API representation including the location label.
type RoomView struct {
	Room
	Location string `json:"location"`
}

// NewRoomView decorates a room with its location label.
func NewRoomView(r Room) RoomView {
	return RoomView{Room: r, Location: r.FullLocation()}
}

// RoomFilter defines listing criteria for rooms.
type RoomFilter struct {
	Site      RoomSite
	Building  RoomBuilding
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// RoomRequest is the create/update payload for rooms.
type RoomRequest struct {
	Name     string       `json:"name" validate:"required,max=50"`
	Site     RoomSite     `json:"site" validate:"omitempty,room_site"`
	Building RoomBuilding `json:"building" validate:"omitempty,room_building"`
	Floor    int          `json:"floor" validate:"omitempty,min=1,max=3"`
	Capacity *int         `json:"capacity" validate:"omitempty,min=0"`
	Active   *bool        `json:"active"`
}
