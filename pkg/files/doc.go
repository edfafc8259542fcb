// Package files handles evidence and policy document uploads and deletions.
//
// Objects are stored under org/{orgID}/{evidence|policies}/{entityID}/{unixMillis}_{name}.
// The organization segment always comes from the resolved caller. Deletes
// check the path prefix, then the owning control or policy, then delete the
// row with the organization in its predicate, and only then delete the object.
package files
