// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package core

import "fmt"

// SubscriberID formats the stable, human-readable session id for the
// ordinal-th subscriber (1-based, zero padded).
func SubscriberID(ordinal int) string {
	return fmt.Sprintf("%02d", ordinal)
}

// SubscriberClientID derives the MQTT client identifier for a subscriber
// session. The broker evicts duplicate client ids, so the id must be
// unique per broker account; identity is kept stable across reconnects to
// let the broker resume the persistent session.
func SubscriberClientID(prefix string, ordinal int) string {
	return fmt.Sprintf("%s-subscriber-%s", prefix, SubscriberID(ordinal))
}

// PublisherClientID derives the MQTT client identifier for the publisher.
func PublisherClientID(prefix string) string {
	return prefix + "-publisher"
}
