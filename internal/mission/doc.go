// Package mission defines flow-control missions, their trajectories and
// the records produced when a mission finishes or is classified.
//
// A mission drives one valve through a sequence of trajectory points. Each
// point (time, flow_rate) means "hold flow_rate until time seconds have
// elapsed since the mission started". Missions are validated once, at
// admission, by Validate; nothing downstream re-checks them.
//
// The package also owns the completed-mission history table (see
// SQLiteHistory), an audit log of finished missions. The pending queue is
// never persisted.
package mission
