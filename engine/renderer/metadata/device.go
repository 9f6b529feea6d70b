package metadata

/**
 * @brief What the backend needs to create a logical device once negotiation
 * and queue selection succeeded.
 */
type DeviceDescriptor struct {
	/** @brief Instance identifier, used for debug naming. */
	Name string
	/** @brief Which physical device group to create the device on. */
	GPUGroupIndex uint32
	/** @brief Granted capabilities to enable. */
	Extensions []string
	/** @brief Role assignments; Queues.Families() tells how many queues to request per family. */
	Queues QueueRoleMap
}
