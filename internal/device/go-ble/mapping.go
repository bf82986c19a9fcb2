package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/blereader/internal/device"
)

// parseUUIDs converts textual UUIDs into go-ble UUIDs
func parseUUIDs(uuids []string) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	normalized, err := device.ValidateUUID(uuids...)
	if err != nil {
		return nil, device.Wrap(device.KindScan, "parse_uuid", "", err)
	}
	out := make([]ble.UUID, 0, len(normalized))
	for _, u := range normalized {
		parsed, err := ble.Parse(u)
		if err != nil {
			return nil, device.Wrap(device.KindScan, "parse_uuid", "", err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

// matchesFilters reports whether any advertised service is in filters; no filters matches everything
func matchesFilters(advertised, filters []ble.UUID) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if ble.Contains(advertised, f) {
			return true
		}
	}
	return false
}

func uuidStrings(uuids []ble.UUID) []string {
	if len(uuids) == 0 {
		return nil
	}
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = device.NormalizeUUID(u.String())
	}
	return out
}

// advertisementInfo converts an advertisement into the adapter-neutral form
func advertisementInfo(adv ble.Advertisement) device.PeripheralInfo {
	info := device.PeripheralInfo{
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		Services:    uuidStrings(adv.Services()),
	}
	if addr := adv.Addr(); addr != nil {
		info.ID = addr.String()
	}
	if md := adv.ManufacturerData(); len(md) > 0 {
		info.ManufacturerData = append([]byte(nil), md...)
	}
	return info
}

// properties maps go-ble property flags onto device.Property
func properties(p ble.Property) device.Property {
	var out device.Property
	if p&ble.CharRead != 0 {
		out |= device.PropRead
	}
	if p&ble.CharWrite != 0 {
		out |= device.PropWrite
	}
	if p&ble.CharWriteNR != 0 {
		out |= device.PropWriteWithoutResponse
	}
	if p&ble.CharNotify != 0 {
		out |= device.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= device.PropIndicate
	}
	return out
}

// profileInfo flattens a discovered profile with UUIDs in normalized form
func profileInfo(peripheralID string, profile *ble.Profile) *device.ServiceInfo {
	info := &device.ServiceInfo{PeripheralID: peripheralID}
	if profile == nil {
		return info
	}
	for _, s := range profile.Services {
		svc := device.GATTService{UUID: device.NormalizeUUID(s.UUID.String())}
		for _, c := range s.Characteristics {
			svc.Characteristics = append(svc.Characteristics, device.GATTCharacteristic{
				UUID:       device.NormalizeUUID(c.UUID.String()),
				Properties: properties(c.Property),
			})
		}
		info.Services = append(info.Services, svc)
	}
	return info
}

// findCharacteristic looks a characteristic up by normalized service and characteristic UUID
func findCharacteristic(profile *ble.Profile, service, characteristic string) *ble.Characteristic {
	if profile == nil {
		return nil
	}
	for _, s := range profile.Services {
		if !device.EqualUUID(s.UUID.String(), service) {
			continue
		}
		for _, c := range s.Characteristics {
			if device.EqualUUID(c.UUID.String(), characteristic) {
				return c
			}
		}
	}
	return nil
}
