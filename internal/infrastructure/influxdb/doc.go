// Package influxdb records GPS fixes in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Each stored point is
// written to the gps measurement, tagged by device_id, with latitude,
// longitude, speed and ignition as fields, at the point's own timestamp.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteFix(influxdb.Fix{DeviceID: "3345689", Latitude: -1.29, Longitude: 36.82, Time: ts})
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// failures are delivered to the SetOnError callback and counted in Stats.
// Connection and health check errors are returned directly.
package influxdb
