package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues one point. The call returns immediately; it is
// dropped silently once the client is closed.
//
//	client.WritePoint("flow_sensor",
//	    map[string]string{"sensor_id": "0"},
//	    map[string]any{"flow_rate": 4.2},
//	    time.Now())
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
