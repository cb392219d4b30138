// Package mqtt provides MQTT connectivity for the tracker.
//
// The broker is an optional second edge of the service:
//   - Inbound: gateways that cannot reach the HTTP push endpoint relay raw
//     device pushes to jimi/push/{source}; the tracker subscribes to the
//     configured ingest topic and feeds each message through the same
//     normalisation path as an HTTP push.
//   - Outbound: every stored point is republished, retained, to
//     jimi/core/device/{id}/state so a late subscriber sees the last fix.
//
// A Last Will on jimi/system/status marks the tracker offline if it exits
// without disconnecting.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllPushes(), 1,
//	    func(topic string, payload []byte) error {
//	        return pipeline.IngestPayload(ctx, payload)
//	    })
//
//	client.PublishRetained(mqtt.Topics{}.CoreDeviceState(id), payload)
package mqtt
